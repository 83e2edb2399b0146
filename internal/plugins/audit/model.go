// Package audit records administrative actions (account provisioning and
// secret resets) to the admin_audit_log table and serves the most recent
// entries to admins.
//
// This is a CORE plugin -- it only records observations about changes made
// by other plugins and never modifies their data.
package audit

import "time"

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering and display grouping.

const (
	// ActionUserCreated is logged when an admin provisions an account.
	ActionUserCreated = "user.created"

	// ActionPasswordReset is logged when an admin replaces a user's secret.
	ActionPasswordReset = "password.reset"
)

// Recent-list limits.
const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

// AuditEntry represents a single recorded admin action. Actor name and
// member number are copied at write time so the log survives renames.
// Metadata never contains secrets or hashes.
type AuditEntry struct {
	ID            int64          `json:"id"`
	ActorID       string         `json:"actor_id"`
	ActorMemberNo string         `json:"actor_member_no,omitempty"`
	ActorName     string         `json:"actor_name,omitempty"`
	Action        string         `json:"action"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
