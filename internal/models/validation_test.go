package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func record(role UserRole, action ValidationAction) ValidationRecord {
	return ValidationRecord{Role: role, Action: action}
}

func TestReplayStatusFullChain(t *testing.T) {
	history := []ValidationRecord{
		record(RoleStudent, ActionApprove),
		record(RoleSecretariat, ActionApprove),
		record(RoleLibrary, ActionApprove),
		record(RoleLibrarian, ActionApprove),
		record(RoleAccountant, ActionApprove),
		record(RoleDean, ActionApprove),
		record(RoleAcademicOffice, ActionApprove),
	}
	require.Equal(t, StatusCompleted, ReplayStatus(history))
}

func TestReplayStatusPartial(t *testing.T) {
	history := []ValidationRecord{
		record(RoleStudent, ActionApprove),
		record(RoleSecretariat, ActionApprove),
		record(RoleLibrary, ActionApprove),
	}
	require.Equal(t, StatusValidatedLibrary, ReplayStatus(history))
}

func TestReplayStatusRejection(t *testing.T) {
	history := []ValidationRecord{
		record(RoleStudent, ActionApprove),
		record(RoleSecretariat, ActionApprove),
		record(RoleLibrary, ActionReject),
	}
	require.Equal(t, StatusRejected, ReplayStatus(history))
}

func TestReplayStatusIgnoresOutOfTurnRecords(t *testing.T) {
	// A dean record before the dean's turn must not advance the request.
	history := []ValidationRecord{
		record(RoleStudent, ActionApprove),
		record(RoleDean, ActionApprove),
	}
	require.Equal(t, StatusSubmitted, ReplayStatus(history))
}

func TestReplayStatusEmptyHistoryIsDraft(t *testing.T) {
	require.Equal(t, StatusDraft, ReplayStatus(nil))
}

func TestValidationActionValid(t *testing.T) {
	require.True(t, ActionApprove.Valid())
	require.True(t, ActionReject.Valid())
	require.False(t, ValidationAction("cancel").Valid())
}
