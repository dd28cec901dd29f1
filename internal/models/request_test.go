package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApprovalChainOrder(t *testing.T) {
	wantRoles := []UserRole{
		RoleSecretariat,
		RoleLibrary,
		RoleLibrarian,
		RoleAccountant,
		RoleDean,
		RoleAcademicOffice,
	}
	require.Len(t, ApprovalChain, len(wantRoles))
	for i, stage := range ApprovalChain {
		require.Equal(t, wantRoles[i], stage.Role, "stage %d", i)
	}

	// Each stage's Next must be the following stage's Current.
	for i := 0; i < len(ApprovalChain)-1; i++ {
		require.Equal(t, ApprovalChain[i].Next, ApprovalChain[i+1].Current)
	}
	require.Equal(t, StatusSubmitted, ApprovalChain[0].Current)
	require.Equal(t, StatusCompleted, ApprovalChain[len(ApprovalChain)-1].Next)
}

func TestStageForStatus(t *testing.T) {
	stage, ok := StageForStatus(StatusValidatedAccounts)
	require.True(t, ok)
	require.Equal(t, RoleDean, stage.Role)
	require.Equal(t, StatusValidatedDean, stage.Next)

	_, ok = StageForStatus(StatusDraft)
	require.False(t, ok)
	_, ok = StageForStatus(StatusCompleted)
	require.False(t, ok)
	_, ok = StageForStatus(StatusRejected)
	require.False(t, ok)
}

func TestPendingStatusForRole(t *testing.T) {
	status, ok := PendingStatusForRole(RoleLibrarian)
	require.True(t, ok)
	require.Equal(t, StatusValidatedLibrary, status)

	_, ok = PendingStatusForRole(RoleStudent)
	require.False(t, ok)
}

func TestStatusIsTerminal(t *testing.T) {
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusRejected.IsTerminal())
	require.False(t, StatusDraft.IsTerminal())
	require.False(t, StatusValidatedDean.IsTerminal())
}

func TestDocumentKindIsRequestable(t *testing.T) {
	require.True(t, KindReleveNotesL1.IsRequestable())
	require.True(t, KindDiplomeMaster.IsRequestable())
	require.True(t, KindAutre.IsRequestable())
	require.False(t, KindFicheSynthese.IsRequestable())
	require.False(t, DocumentKind("transcript").IsRequestable())
}

func TestRequestKinds(t *testing.T) {
	r := Request{DocumentKinds: []string{"releve_notes_l1", "diplome_licence"}}
	require.Equal(t, []DocumentKind{KindReleveNotesL1, KindDiplomeLicence}, r.Kinds())
}
