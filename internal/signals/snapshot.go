// Package signals aggregates operational metrics into the immutable snapshot
// each think-cycle reasons about.
package signals

import (
	"fmt"
	"time"
)

// Window is the trailing period every time-bounded signal covers.
const Window = 24 * time.Hour

// TopicCount is a normalized unanswered-question topic and its frequency.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Snapshot is a point-in-time view of the operational signals. It is built
// fresh per cycle and never persisted.
type Snapshot struct {
	CollectedAt       time.Time    `json:"collected_at"`
	ErrorLast24h      int          `json:"error_last_24h"`
	WarnLast24h       int          `json:"warn_last_24h"`
	ChatLast24h       int          `json:"chat_last_24h"`
	UnansweredLast24h int          `json:"unanswered_last_24h"`
	BrainNodes        int          `json:"brain_nodes"`
	LearnedFacts      int          `json:"learned_facts"`
	PendingProposals  int          `json:"pending_proposals"`
	UnknownTopics     []TopicCount `json:"unknown_topics"`
}

// UnansweredRatio is the share of chat questions that got an "I don't know".
func (s Snapshot) UnansweredRatio() float64 {
	if s.ChatLast24h <= 0 {
		return 0
	}
	return clamp01(float64(s.UnansweredLast24h) / float64(s.ChatLast24h))
}

// KnowledgeCoverage relates stored knowledge to chat volume. With no chat
// traffic coverage is considered complete.
func (s Snapshot) KnowledgeCoverage() float64 {
	if s.ChatLast24h <= 0 {
		return 1
	}
	return float64(s.BrainNodes+s.LearnedFacts) / float64(s.ChatLast24h)
}

// SparseKnowledge reports a knowledge base that is thin for the chat volume it serves.
func (s Snapshot) SparseKnowledge() bool {
	return s.ChatLast24h >= 10 && s.KnowledgeCoverage() < 0.5
}

// TopicPressure sums the unanswered-topic frequencies, saturating at 10.
func (s Snapshot) TopicPressure() float64 {
	total := 0
	for _, t := range s.UnknownTopics {
		total += t.Count
	}
	return clamp01(float64(total) / 10)
}

// KnowledgeDrive combines unanswered ratio, chat volume, coverage gap and
// topic pressure into a single urge-to-learn score in [0,1].
func (s Snapshot) KnowledgeDrive() float64 {
	volume := clamp01(float64(s.ChatLast24h) / 50)
	gap := 0.0
	if s.ChatLast24h > 0 {
		gap = 1 - clamp01(s.KnowledgeCoverage())
	}
	return clamp01(0.35*s.UnansweredRatio() + 0.20*volume + 0.25*gap + 0.20*s.TopicPressure())
}

// Lines renders the operational signals as stable key=value strings.
// PendingProposals is queue state and is not included.
func (s Snapshot) Lines() []string {
	return []string{
		fmt.Sprintf("error_last_24h=%d", s.ErrorLast24h),
		fmt.Sprintf("warn_last_24h=%d", s.WarnLast24h),
		fmt.Sprintf("chat_last_24h=%d", s.ChatLast24h),
		fmt.Sprintf("unanswered_last_24h=%d", s.UnansweredLast24h),
		fmt.Sprintf("brain_nodes=%d", s.BrainNodes),
		fmt.Sprintf("learned_facts=%d", s.LearnedFacts),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
