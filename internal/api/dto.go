package api

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/markdown"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/proposal"
)

// ProposedUpdate is the full proposal record (aliased from the domain layer).
type ProposedUpdate = models.ProposedUpdate

// Notification is an operator notification (aliased from the domain layer).
type Notification = models.Notification

// CycleResult is the outcome of a think-cycle (aliased from the domain layer).
type CycleResult = autonomy.CycleResult

// UpdateListResponse wraps proposal listings.
type UpdateListResponse struct {
	Updates []ProposedUpdate `json:"updates" validate:"required"`
	Total   int              `json:"total" example:"3" validate:"required"`
}

// ChangePreview summarizes one generated markdown artifact of a proposal.
type ChangePreview struct {
	Path     string   `json:"path" example:"evolution/reflections/20260314-092653-memory-expansion.md" validate:"required"`
	Title    string   `json:"title" example:"Memory expansion"`
	Sections []string `json:"sections"`
	Tags     []string `json:"tags"`
}

// UpdateDetail is a proposal plus previews of its markdown changes.
type UpdateDetail struct {
	ProposedUpdate
	Previews []ChangePreview `json:"previews"`
}

// CommentRequest is the request body for commenting on a proposal.
type CommentRequest struct {
	Content string `json:"content" example:"Looks good, apply after the release." validate:"required"`
}

// Validate checks the trimmed comment body.
func (r CommentRequest) Validate() error {
	return validation.Errors{
		"content": validation.Validate(strings.TrimSpace(r.Content),
			validation.Required,
			validation.RuneLength(1, proposal.MaxCommentLen)),
	}.Filter()
}

// NotificationListResponse wraps notification listings.
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications" validate:"required"`
}

// RuntimeStats is the runtime part of the stats response.
type RuntimeStats struct {
	Status             string     `json:"status" example:"running"`
	StartedAt          time.Time  `json:"started_at"`
	LastCycleAt        *time.Time `json:"last_cycle_at,omitempty"`
	LastProposalAt     *time.Time `json:"last_proposal_at,omitempty"`
	TotalCycles        int64      `json:"total_cycles"`
	TotalProposals     int64      `json:"total_proposals"`
	EmptyCycles        int64      `json:"empty_cycles"`
	DuplicateSkips     int64      `json:"duplicate_skips"`
	LastReason         string     `json:"last_reason"`
	LastKnowledgeDrive float64    `json:"last_knowledge_drive"`
	Enabled            bool       `json:"enabled"`
	IntervalSeconds    int        `json:"interval_seconds" example:"300"`
	CooldownSeconds    int        `json:"cooldown_seconds" example:"900"`
	PendingCap         int        `json:"pending_cap" example:"12"`
}

// StatsResponse reports queue counts and the scheduler state.
type StatsResponse struct {
	Counts  map[models.ProposalStatus]int `json:"counts" validate:"required"`
	Total   int                           `json:"total"`
	Runtime RuntimeStats                  `json:"runtime" validate:"required"`
}

func runtimeStats(st models.RuntimeState, s autonomy.Settings) RuntimeStats {
	return RuntimeStats{
		Status:             st.Status,
		StartedAt:          st.StartedAt,
		LastCycleAt:        st.LastCycleAt,
		LastProposalAt:     st.LastProposalAt,
		TotalCycles:        st.TotalCycles,
		TotalProposals:     st.TotalProposals,
		EmptyCycles:        st.EmptyCycles,
		DuplicateSkips:     st.DuplicateSkips,
		LastReason:         st.LastReason,
		LastKnowledgeDrive: st.LastKnowledgeDrive,
		Enabled:            s.Enabled,
		IntervalSeconds:    int(s.Interval.Seconds()),
		CooldownSeconds:    int(s.Cooldown.Seconds()),
		PendingCap:         s.PendingCap,
	}
}

func previews(changes []models.FileChange) []ChangePreview {
	out := make([]ChangePreview, 0, len(changes))
	for _, c := range changes {
		if !strings.HasSuffix(c.Path, ".md") {
			continue
		}
		p := ChangePreview{Path: c.Path}
		doc, err := markdown.Parse([]byte(c.NewContent))
		if err != nil {
			out = append(out, p)
			continue
		}
		p.Title, p.Tags = doc.Title, doc.Tags
		for _, s := range doc.Sections {
			p.Sections = append(p.Sections, s.Heading)
		}
		out = append(out, p)
	}
	return out
}
