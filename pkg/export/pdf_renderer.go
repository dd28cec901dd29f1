package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// RequestInfo is the request header printed on every rendered document.
type RequestInfo struct {
	RequestID    string
	StudentName  string
	StudentEmail string
	Motif        string
	CreatedAt    time.Time
	Kinds        []string
}

// TrailEntry is one validation step printed on the summary sheet.
type TrailEntry struct {
	Role    string
	Action  string
	Comment string
	At      time.Time
}

// PDFRenderer renders summary sheets and academic documents.
type PDFRenderer struct {
	institution string
}

// NewPDFRenderer constructs a renderer with the institution header line.
func NewPDFRenderer(institution string) *PDFRenderer {
	if institution == "" {
		institution = "Faculte des Sciences"
	}
	return &PDFRenderer{institution: institution}
}

// RenderSummarySheet produces the administrative synthesis sheet: request
// header plus the full validation trail.
func (r *PDFRenderer) RenderSummarySheet(info RequestInfo, trail []TrailEntry) ([]byte, error) {
	if info.RequestID == "" {
		return nil, fmt.Errorf("summary sheet requires a request id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	r.header(pdf, "Fiche de synthese")
	r.requestBlock(pdf, info)

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "Parcours de validation", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 9)
	widths := []float64{40, 25, 45, 70}
	headers := []string{"Role", "Decision", "Date", "Commentaire"}
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, entry := range trail {
		pdf.CellFormat(widths[0], 7, entry.Role, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, entry.Action, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, entry.At.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[3], 7, entry.Comment, "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}

	return output(pdf)
}

// RenderAcademicDocument produces one requested document with the given title.
func (r *PDFRenderer) RenderAcademicDocument(title string, info RequestInfo) ([]byte, error) {
	if title == "" {
		return nil, fmt.Errorf("academic document requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	r.header(pdf, title)
	r.requestBlock(pdf, info)

	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 6, fmt.Sprintf(
		"Le present document \"%s\" est delivre a %s suite a la demande %s, validee par l'ensemble de la chaine administrative.",
		title, info.StudentName, info.RequestID,
	), "", "L", false)

	pdf.Ln(14)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "Fait le "+time.Now().UTC().Format("2006-01-02"), "", 1, "R", false, 0, "")

	return output(pdf)
}

func (r *PDFRenderer) header(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, r.institution, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)
}

func (r *PDFRenderer) requestBlock(pdf *gofpdf.Fpdf, info RequestInfo) {
	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Demande", info.RequestID},
		{"Etudiant", info.StudentName},
		{"Email", info.StudentEmail},
		{"Motif", info.Motif},
		{"Documents", strings.Join(info.Kinds, ", ")},
		{"Creee le", info.CreatedAt.Format("2006-01-02")},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
