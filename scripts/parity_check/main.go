// Command parity_check replays a set of read endpoints against both the
// legacy document-request portal and this API and reports divergences.
// Used during the cutover to confirm the new service answers like the old
// one before traffic is switched.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
)

type probe struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Blocking bool   `json:"blocking"`
}

type probeFile struct {
	Probes []probe `json:"probes"`
}

type result struct {
	probe probe

	newStatus    int
	legacyStatus int
	newLatency   time.Duration
	legacyLat    time.Duration
	statusMatch  bool
	bodyMatch    bool
	err          error
}

func main() {
	var (
		newBase    string
		legacyBase string
		probesPath string
		token      string
		timeout    time.Duration
	)

	flag.StringVar(&newBase, "new-base", "http://localhost:8080", "new API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:3000", "legacy portal base URL")
	flag.StringVar(&probesPath, "probes", filepath.Join("scripts", "parity_check", "probes.json"), "JSON probe list")
	flag.StringVar(&token, "token", os.Getenv("PARITY_TOKEN"), "bearer token sent to both sides")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	probes, err := loadProbes(probesPath)
	if err != nil {
		log.Fatalf("load probes: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var results []result
	blocking := 0

	for _, p := range probes {
		res := runProbe(client, token, newBase, legacyBase, p)
		if diverged(res) && p.Blocking {
			blocking++
		}
		results = append(results, res)
	}

	report(results)
	fmt.Printf("blocking divergences: %d\n", blocking)
	if blocking > 0 {
		os.Exit(1)
	}
}

func diverged(res result) bool {
	return res.err != nil || !res.statusMatch || !res.bodyMatch
}

func loadProbes(path string) ([]probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file probeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Probes) == 0 {
		return nil, fmt.Errorf("%s lists no probes", path)
	}
	return file.Probes, nil
}

func runProbe(client *http.Client, token, newBase, legacyBase string, p probe) result {
	res := result{probe: p}

	newStatus, newBody, newLat, err := fetch(client, token, newBase, p)
	if err != nil {
		res.err = fmt.Errorf("new side: %w", err)
		return res
	}
	legacyStatus, legacyBody, legacyLat, err := fetch(client, token, legacyBase, p)
	if err != nil {
		res.err = fmt.Errorf("legacy side: %w", err)
		return res
	}

	res.newStatus = newStatus
	res.legacyStatus = legacyStatus
	res.newLatency = newLat
	res.legacyLat = legacyLat
	res.statusMatch = newStatus == legacyStatus
	res.bodyMatch = equivalentJSON(newBody, legacyBody)
	return res
}

func fetch(client *http.Client, token, base string, p probe) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(p.Method))
	if method == "" {
		method = http.MethodGet
	}
	url := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p.Path, "/")

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, time.Since(start), nil
}

// equivalentJSON treats the two payloads as equal when they decode to the
// same structure, ignoring key order and integer-valued float forms. The
// legacy portal serializes counts as floats.
func equivalentJSON(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	canonicalize(&av)
	canonicalize(&bv)
	return reflect.DeepEqual(av, bv)
}

func canonicalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		for k, inner := range val {
			canonicalize(&inner)
			val[k] = inner
		}
	case []interface{}:
		for i, inner := range val {
			canonicalize(&inner)
			val[i] = inner
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func report(results []result) {
	fmt.Println("Parity report")
	fmt.Println("=============")
	for _, res := range results {
		verdict := "OK"
		switch {
		case res.err != nil:
			verdict = "ERROR"
		case diverged(res):
			verdict = "DIFF"
		}
		fmt.Printf("[%s] %s %s\n", verdict, res.probe.Method, res.probe.Path)
		if res.err != nil {
			fmt.Printf("  %v\n", res.err)
			continue
		}
		fmt.Printf("  new: %d in %s | legacy: %d in %s\n",
			res.newStatus, res.newLatency, res.legacyStatus, res.legacyLat)
		fmt.Printf("  status match: %t | body match: %t | blocking: %t\n",
			res.statusMatch, res.bodyMatch, res.probe.Blocking)
	}
}
