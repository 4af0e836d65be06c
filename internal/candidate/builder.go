// Package candidate turns a signal snapshot into a proposal candidate by
// evaluating an ordered list of heuristic rules.
package candidate

import (
	"fmt"

	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/signals"
)

// Kind identifies which rule produced a candidate.
type Kind string

const (
	KindStability        Kind = "stability_hardening"
	KindLearningSprint   Kind = "learning_sprint"
	KindSearchPlan       Kind = "search_plan"
	KindWarningReduction Kind = "warning_reduction"
	KindMemoryExpansion  Kind = "memory_expansion"
	KindHeartbeat        Kind = "heartbeat"
)

const (
	// MaxSearchQueries caps the search-query list of a candidate.
	MaxSearchQueries = 10

	driveThreshold = 0.72
	maxDriveBoost  = 0.08
	maxConfidence  = 0.99
)

// Candidate is the heuristic outcome for one snapshot.
type Candidate struct {
	Kind           Kind            `json:"kind"`
	Title          string          `json:"title"`
	Severity       models.Severity `json:"severity"`
	Reason         string          `json:"reason"`
	Confidence     float32         `json:"confidence"`
	Rationale      []string        `json:"rationale"`
	SourceSignals  []string        `json:"source_signals"`
	SearchQueries  []string        `json:"search_queries"`
	KnowledgeDrive float64         `json:"knowledge_drive"`
}

// Build evaluates the rules top-down; the first match wins and the heartbeat
// rule always matches. The result depends only on s.
func Build(s signals.Snapshot) Candidate {
	var c Candidate
	for _, r := range rules {
		if r.match(s) {
			c = r.build(s)
			break
		}
	}

	drive := s.KnowledgeDrive()
	c.KnowledgeDrive = drive
	c.SourceSignals = s.Lines()
	c.SearchQueries = SearchQueries(s.UnknownTopics)
	c.Rationale = append(c.Rationale, fmt.Sprintf("Knowledge drive is %.2f.", drive))

	if drive >= driveThreshold {
		if c.Severity == models.SeverityLow {
			c.Severity = models.SeverityMedium
			c.Rationale = append(c.Rationale, "Severity raised to Medium by a high knowledge drive.")
		}
		boost := maxDriveBoost * (drive - driveThreshold) / (1 - driveThreshold)
		c.Confidence = min(c.Confidence+float32(boost), maxConfidence)
	}
	return c
}

// broadQueries pad the search list when few unknown topics exist.
var broadQueries = []string{
	"common user questions in conversational assistants",
	"knowledge base coverage best practices",
	"error handling patterns in web services",
	"reducing warning noise in production logs",
	"structured knowledge extraction from conversations",
	"question answering evaluation metrics",
	"incremental learning from chat transcripts",
	"self-hosted search index for assistants",
	"graph databases for knowledge storage",
	"natural language processing techniques",
}

// SearchQueries lists the unknown topics first and pads with broad queries,
// deduplicated by exact match, up to MaxSearchQueries entries.
func SearchQueries(topics []signals.TopicCount) []string {
	seen := make(map[string]struct{}, MaxSearchQueries)
	out := make([]string, 0, MaxSearchQueries)
	add := func(q string) {
		if q == "" || len(out) >= MaxSearchQueries {
			return
		}
		if _, dup := seen[q]; dup {
			return
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	for _, t := range topics {
		add(t.Topic)
	}
	for _, q := range broadQueries {
		add(q)
	}
	return out
}
