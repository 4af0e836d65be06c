package candidate

import (
	"fmt"
	"strings"

	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/signals"
)

type rule struct {
	kind  Kind
	match func(signals.Snapshot) bool
	build func(signals.Snapshot) Candidate
}

// rules are evaluated in order; keep the heartbeat rule last.
var rules = []rule{
	{
		kind:  KindStability,
		match: func(s signals.Snapshot) bool { return s.ErrorLast24h >= 5 },
		build: func(s signals.Snapshot) Candidate {
			return Candidate{
				Kind:       KindStability,
				Title:      "Stability hardening sprint",
				Severity:   models.SeverityHigh,
				Confidence: 0.92,
				Reason:     fmt.Sprintf("%d errors were logged in the last 24h.", s.ErrorLast24h),
				Rationale: []string{
					"Error volume is above the stability threshold of 5 per day.",
					"Recurring failures erode trust faster than missing features.",
					"Review the most frequent error categories before adding new behaviour.",
				},
			}
		},
	},
	{
		kind:  KindLearningSprint,
		match: func(s signals.Snapshot) bool { return s.UnansweredLast24h >= 3 },
		build: func(s signals.Snapshot) Candidate {
			return Candidate{
				Kind:       KindLearningSprint,
				Title:      "Learning sprint for unanswered questions",
				Severity:   models.SeverityHigh,
				Confidence: 0.89,
				Reason: fmt.Sprintf("%d questions went unanswered in the last 24h%s.",
					s.UnansweredLast24h, topicSuffix(s.UnknownTopics)),
				Rationale: []string{
					"Users asked questions the knowledge base could not answer.",
					"Learning the most frequent unknown topics closes the largest gaps first.",
				},
			}
		},
	},
	{
		kind:  KindSearchPlan,
		match: func(s signals.Snapshot) bool { return s.SparseKnowledge() },
		build: func(s signals.Snapshot) Candidate {
			return Candidate{
				Kind:       KindSearchPlan,
				Title:      "Knowledge search plan",
				Severity:   models.SeverityMedium,
				Confidence: 0.81,
				Reason: fmt.Sprintf("Only %d knowledge items back %d chats in the last 24h.",
					s.BrainNodes+s.LearnedFacts, s.ChatLast24h),
				Rationale: []string{
					"The knowledge base is sparse relative to chat volume.",
					"A targeted search plan grows coverage where conversations happen.",
				},
			}
		},
	},
	{
		kind:  KindWarningReduction,
		match: func(s signals.Snapshot) bool { return s.WarnLast24h >= 15 },
		build: func(s signals.Snapshot) Candidate {
			return Candidate{
				Kind:       KindWarningReduction,
				Title:      "Warning reduction pass",
				Severity:   models.SeverityMedium,
				Confidence: 0.78,
				Reason:     fmt.Sprintf("%d warnings were logged in the last 24h.", s.WarnLast24h),
				Rationale: []string{
					"Warning volume is above the noise threshold of 15 per day.",
					"Noisy logs hide the signals that matter.",
				},
			}
		},
	},
	{
		kind:  KindMemoryExpansion,
		match: func(s signals.Snapshot) bool { return s.ChatLast24h >= 25 && s.LearnedFacts < 5 },
		build: func(s signals.Snapshot) Candidate {
			return Candidate{
				Kind:       KindMemoryExpansion,
				Title:      "Memory expansion",
				Severity:   models.SeverityMedium,
				Confidence: 0.74,
				Reason: fmt.Sprintf("%d chats in the last 24h produced only %d learned facts.",
					s.ChatLast24h, s.LearnedFacts),
				Rationale: []string{
					"Conversation volume is high but little of it is remembered.",
					"Capturing durable facts from chats improves follow-up answers.",
				},
			}
		},
	},
	{
		kind:  KindHeartbeat,
		match: func(signals.Snapshot) bool { return true },
		build: func(signals.Snapshot) Candidate {
			return Candidate{
				Kind:       KindHeartbeat,
				Title:      "Reflection heartbeat",
				Severity:   models.SeverityLow,
				Confidence: 0.61,
				Reason:     "No signal crossed a threshold; recording a routine reflection.",
				Rationale: []string{
					"All monitored signals are within normal bounds.",
					"A periodic reflection keeps the experiment backlog current.",
				},
			}
		},
	},
}

func topicSuffix(topics []signals.TopicCount) string {
	if len(topics) == 0 {
		return ""
	}
	names := make([]string, 0, 3)
	for i, t := range topics {
		if i == 3 {
			break
		}
		names = append(names, t.Topic)
	}
	return " (top topics: " + strings.Join(names, ", ") + ")"
}
