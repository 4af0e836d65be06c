package signals

import (
	"sort"
	"strings"

	"github.com/starford/jeebs/internal/models"
)

// MaxTopics bounds how many unknown topics a snapshot carries.
const MaxTopics = 8

const (
	minTokenLen    = 3
	maxTopicTokens = 6
)

// unknownReplyPatterns mark an assistant reply that admits not knowing.
var unknownReplyPatterns = []string{
	"i don't know",
	"i do not know",
	"i'm not sure",
	"i am not sure",
	"i don't have an answer",
	"i haven't learned",
	"i have not learned",
	"i don't understand",
	"i can't answer",
	"not sure yet",
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "did": {}, "you": {}, "your": {},
	"what": {}, "who": {}, "how": {}, "why": {}, "about": {}, "remember": {},
	"know": {}, "can": {}, "does": {}, "tell": {}, "with": {}, "that": {},
	"this": {}, "when": {}, "where": {}, "which": {}, "there": {}, "have": {},
	"please": {}, "explain": {}, "mean": {}, "means": {}, "from": {}, "into": {},
}

// IsUnknownReply reports whether an assistant reply matches the fixed
// "I don't know" pattern set.
func IsUnknownReply(reply string) bool {
	r := strings.ToLower(strings.ReplaceAll(reply, "’", "'"))
	for _, p := range unknownReplyPatterns {
		if strings.Contains(r, p) {
			return true
		}
	}
	return false
}

// UnansweredQuestions pairs each user turn with the next assistant turn of the
// same user and returns the questions whose reply was an admission of ignorance.
func UnansweredQuestions(turns []models.ChatTurn) []string {
	lastQuestion := make(map[string]string)
	var out []string
	for _, t := range turns {
		switch strings.ToLower(t.Role) {
		case "user":
			lastQuestion[t.Username] = t.Content
		case "assistant":
			q, ok := lastQuestion[t.Username]
			if !ok {
				continue
			}
			delete(lastQuestion, t.Username)
			if IsUnknownReply(t.Content) {
				out = append(out, q)
			}
		}
	}
	return out
}

// TopicKey normalizes a question into a lowercase key of at most six
// stopword-free tokens of three or more characters.
func TopicKey(question string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(question) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) < minTokenLen {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) == maxTopicTokens {
			break
		}
	}
	return strings.Join(tokens, " ")
}

// TopTopics counts topic keys and returns the n most frequent, ties broken
// alphabetically so the result is deterministic.
func TopTopics(questions []string, n int) []TopicCount {
	counts := make(map[string]int)
	for _, q := range questions {
		if key := TopicKey(q); key != "" {
			counts[key]++
		}
	}
	out := make([]TopicCount, 0, len(counts))
	for topic, c := range counts {
		out = append(out, TopicCount{Topic: topic, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
