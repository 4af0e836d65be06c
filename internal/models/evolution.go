// Package models defines the domain types for the evolution subsystem.
package models

import (
	"encoding/json"
	"time"
)

// Severity grades how urgently a proposal should be reviewed.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Notifies reports whether proposals of this severity raise a notification.
func (s Severity) Notifies() bool {
	return s == SeverityMedium || s == SeverityHigh
}

// ProposalStatus is a lifecycle state of a ProposedUpdate.
type ProposalStatus string

const (
	StatusPending    ProposalStatus = "pending"
	StatusApplied    ProposalStatus = "applied"
	StatusDenied     ProposalStatus = "denied"
	StatusResolved   ProposalStatus = "resolved"
	StatusRolledBack ProposalStatus = "rolled_back"
)

// AllStatuses lists every lifecycle state in display order.
var AllStatuses = []ProposalStatus{StatusPending, StatusApplied, StatusDenied, StatusResolved, StatusRolledBack}

// transitions is the complete lifecycle graph. Anything not listed is illegal.
var transitions = map[ProposalStatus][]ProposalStatus{
	StatusPending: {StatusApplied, StatusDenied, StatusResolved},
	StatusApplied: {StatusRolledBack},
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s ProposalStatus) CanTransition(next ProposalStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s. Applied is not terminal
// because it can still be rolled back.
func (s ProposalStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Active reports whether a proposal in this state blocks an identical
// candidate from being proposed again.
func (s ProposalStatus) Active() bool {
	return s == StatusPending || s == StatusApplied || s == StatusResolved
}

// FileChange is a single file write. In a backup snapshot NewContent holds the
// pre-image and ExistedBefore tells whether the file has to be recreated or removed.
type FileChange struct {
	Path          string `json:"path"`
	NewContent    string `json:"new_content"`
	ExistedBefore bool   `json:"existed_before"`
}

// UnmarshalJSON treats a missing existed_before as true. Records written
// before the flag existed only backed up files that were present.
func (c *FileChange) UnmarshalJSON(data []byte) error {
	type plain FileChange
	var aux struct {
		plain
		ExistedBefore *bool `json:"existed_before"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = FileChange(aux.plain)
	c.ExistedBefore = aux.ExistedBefore == nil || *aux.ExistedBefore
	return nil
}

// Comment is a reviewer remark attached to a proposal.
type Comment struct {
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ProposedUpdate is a reviewable change-set with its lifecycle metadata.
// Backup is nil until the update is applied; an empty backup means every
// applied file was new. CreatedDirs lists the directories the apply created,
// outermost first.
type ProposedUpdate struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Author        string         `json:"author"`
	Severity      Severity       `json:"severity"`
	Description   string         `json:"description"`
	Changes       []FileChange   `json:"changes"`
	Status        ProposalStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	Backup        []FileChange   `json:"backup"`
	CreatedDirs   []string       `json:"created_dirs,omitempty"`
	AutoGenerated bool           `json:"auto_generated"`
	Rationale     []string       `json:"rationale"`
	SourceSignals []string       `json:"source_signals"`
	Confidence    float32        `json:"confidence"`
	Fingerprint   string         `json:"fingerprint"`
	Comments      []Comment      `json:"comments"`

	AppliedAt    *time.Time `json:"applied_at,omitempty"`
	DeniedAt     *time.Time `json:"denied_at,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`
}

// Notification is a short message surfaced to the operator.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	Link      string    `json:"link,omitempty"`
}

// Runtime statuses reported by the scheduler.
const (
	RuntimeRunning  = "running"
	RuntimeDisabled = "disabled"
	RuntimeStopped  = "stopped"
	RuntimeIdle     = "idle"
)

// RuntimeState is the persisted singleton describing the think-cycle loop.
type RuntimeState struct {
	StartedAt          time.Time  `json:"started_at"`
	LastCycleAt        *time.Time `json:"last_cycle_at,omitempty"`
	LastProposalAt     *time.Time `json:"last_proposal_at,omitempty"`
	TotalCycles        int64      `json:"total_cycles"`
	TotalProposals     int64      `json:"total_proposals"`
	EmptyCycles        int64      `json:"empty_cycles"`
	DuplicateSkips     int64      `json:"duplicate_skips"`
	LastReason         string     `json:"last_reason"`
	Status             string     `json:"status"`
	LastKnowledgeDrive float64    `json:"last_knowledge_drive"`
}

// ChatTurn is one message of a stored conversation.
type ChatTurn struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
