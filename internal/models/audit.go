package models

import "time"

// AuditAction constants represent actions recorded in the audit trail.
const (
	AuditActionRegister       = "AUTH_REGISTER"
	AuditActionLoginSuccess   = "AUTH_LOGIN_SUCCESS"
	AuditActionLoginFailed    = "AUTH_LOGIN_FAILED"
	AuditActionRefreshSuccess = "AUTH_REFRESH_SUCCESS"
	AuditActionRefreshFailed  = "AUTH_REFRESH_FAILED"
	AuditActionLogout         = "AUTH_LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionMessageCreate  = "MESSAGE_CREATE"
	AuditActionMessageUpdate  = "MESSAGE_UPDATE"
	AuditActionMessageDelete  = "MESSAGE_DELETE"
)

// Refresh failure reasons recorded in audit metadata.
const (
	RefreshFailureMissing          = "MISSING"
	RefreshFailureInvalidOrExpired = "INVALID_OR_EXPIRED"
	RefreshFailureNotRecognized    = "NOT_RECOGNIZED"
	RefreshFailureUnknownUser      = "UNKNOWN_USER"
)

// AuditLog represents an audit trail record. UserID is nil for anonymous
// events such as failed logins against unknown usernames.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
