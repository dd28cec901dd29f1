package models

import "time"

// UserRole represents the available roles for the RBAC system. Students create
// and submit requests; every other role is a stage of the approval chain except
// RoleAcademicOffice which also closes completed requests.
type UserRole string

const (
	RoleStudent        UserRole = "STUDENT"
	RoleSecretariat    UserRole = "SECRETARIAT"
	RoleLibrary        UserRole = "LIBRARY"
	RoleLibrarian      UserRole = "LIBRARIAN"
	RoleAccountant     UserRole = "ACCOUNTANT"
	RoleDean           UserRole = "DEAN"
	RoleAcademicOffice UserRole = "ACADEMIC_OFFICE"
)

// ApproverRoles lists every role that participates in the approval chain.
var ApproverRoles = []UserRole{
	RoleSecretariat,
	RoleLibrary,
	RoleLibrarian,
	RoleAccountant,
	RoleDean,
	RoleAcademicOffice,
}

// IsApprover reports whether the role belongs to the approval chain.
func (r UserRole) IsApprover() bool {
	for _, role := range ApproverRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
