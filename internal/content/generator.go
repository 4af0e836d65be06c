// Package content renders a candidate into the markdown artifacts that make up
// a proposal's change set.
package content

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/jeebs/internal/candidate"
	"github.com/starford/jeebs/internal/models"
	"github.com/starford/jeebs/internal/signals"
)

// TimestampLayout is the sortable prefix of every generated filename.
const TimestampLayout = "20060102-150405"

// Root is the directory every generated artifact lives under.
const Root = "evolution"

// GeneratedAtPrefix starts the single volatile line of each document.
const GeneratedAtPrefix = "Generated at: "

const maxSlugLen = 60

// Artifact kinds, also used as the frontmatter "artifact" value.
const (
	ArtifactReflection  = "reflection"
	ArtifactLearning    = "learning_plan"
	ArtifactScope       = "scope_roadmap"
	ArtifactExperiments = "experiment_backlog"
)

// Frontmatter is the YAML header written at the top of each document.
type Frontmatter struct {
	Title          string   `yaml:"title"`
	Artifact       string   `yaml:"artifact"`
	Candidate      string   `yaml:"candidate"`
	Severity       string   `yaml:"severity"`
	Confidence     string   `yaml:"confidence"`
	KnowledgeDrive string   `yaml:"knowledge_drive"`
	Tags           []string `yaml:"tags"`
}

// Generate renders the four documents for c. Paths and the "Generated at"
// line depend on now; everything else depends only on c and s.
func Generate(c candidate.Candidate, s signals.Snapshot, now time.Time) ([]models.FileChange, error) {
	ts := now.UTC().Format(TimestampLayout)
	slug := Slug(c.Title)
	stamp := GeneratedAtPrefix + now.UTC().Format(time.RFC3339)

	docs := []struct {
		path     string
		artifact string
		heading  string
		body     func(*strings.Builder)
	}{
		{
			path:     fmt.Sprintf("%s/reflections/%s-%s.md", Root, ts, slug),
			artifact: ArtifactReflection,
			heading:  c.Title,
			body:     func(b *strings.Builder) { reflection(b, c) },
		},
		{
			path:     fmt.Sprintf("%s/learning/%s-%s-plan.md", Root, ts, slug),
			artifact: ArtifactLearning,
			heading:  "Learning Plan: " + c.Title,
			body:     func(b *strings.Builder) { learningPlan(b, c, s) },
		},
		{
			path:     fmt.Sprintf("%s/scope/%s-%s-scope.md", Root, ts, slug),
			artifact: ArtifactScope,
			heading:  "Scope Roadmap: " + c.Title,
			body:     func(b *strings.Builder) { scopeRoadmap(b, c) },
		},
		{
			path:     fmt.Sprintf("%s/experiments/%s-%s-experiments.md", Root, ts, slug),
			artifact: ArtifactExperiments,
			heading:  "Experiment Backlog: " + c.Title,
			body:     func(b *strings.Builder) { experiments(b, c, s) },
		},
	}

	changes := make([]models.FileChange, 0, len(docs))
	for _, d := range docs {
		fm, err := yaml.Marshal(Frontmatter{
			Title:          d.heading,
			Artifact:       d.artifact,
			Candidate:      string(c.Kind),
			Severity:       string(c.Severity),
			Confidence:     fmt.Sprintf("%.2f", c.Confidence),
			KnowledgeDrive: fmt.Sprintf("%.2f", c.KnowledgeDrive),
			Tags:           []string{"evolution", d.artifact},
		})
		if err != nil {
			return nil, fmt.Errorf("content: frontmatter %s: %w", d.artifact, err)
		}

		var b strings.Builder
		b.WriteString("---\n")
		b.Write(fm)
		b.WriteString("---\n\n")
		fmt.Fprintf(&b, "# %s\n\n%s\n\n", d.heading, stamp)
		d.body(&b)

		changes = append(changes, models.FileChange{Path: d.path, NewContent: b.String()})
	}
	return changes, nil
}

// Slug lowercases title and joins its alphanumeric runs with '-'.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	s := b.String()
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "update"
	}
	return s
}

func reflection(b *strings.Builder, c candidate.Candidate) {
	section(b, "Summary")
	fmt.Fprintf(b, "%s\n\n", c.Reason)
	fmt.Fprintf(b, "- Severity: %s\n- Confidence: %.2f\n- Knowledge drive: %.2f\n\n", c.Severity, c.Confidence, c.KnowledgeDrive)

	section(b, "Rationale")
	bullets(b, c.Rationale)

	section(b, "Source Signals")
	bullets(b, c.SourceSignals)

	section(b, "Suggested Actions")
	bullets(b, actions[c.Kind])
}

func learningPlan(b *strings.Builder, c candidate.Candidate, s signals.Snapshot) {
	section(b, "Priority Topics")
	if len(s.UnknownTopics) == 0 {
		b.WriteString("- No unanswered topics recorded in the last 24h.\n\n")
	} else {
		for _, t := range s.UnknownTopics {
			fmt.Fprintf(b, "- %s (asked %d times)\n", t.Topic, t.Count)
		}
		b.WriteString("\n")
	}

	section(b, "Search Queries For Knowledge Expansion")
	for i, q := range c.SearchQueries {
		fmt.Fprintf(b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\n")

	section(b, "Study Loop")
	bullets(b, []string{
		"Pick the top topic and collect two independent sources.",
		"Store distilled facts and link them to existing knowledge nodes.",
		"Re-ask the original question and confirm the answer changed.",
	})
}

func scopeRoadmap(b *strings.Builder, c candidate.Candidate) {
	section(b, "Now")
	bullets(b, firstN(actions[c.Kind], 1))

	section(b, "Next")
	bullets(b, []string{
		"Measure the signal that triggered this proposal again after one day.",
		"Fold what worked into the default behaviour.",
	})

	section(b, "Later")
	bullets(b, []string{
		"Automate the check so the same gap is caught earlier.",
	})

	section(b, "Out Of Scope")
	bullets(b, []string{
		"Build or restart orchestration.",
		"Changes outside the allow-listed directories.",
	})
}

func experiments(b *strings.Builder, c candidate.Candidate, s signals.Snapshot) {
	section(b, "Hypotheses")
	fmt.Fprintf(b, "1. Acting on %q lowers the triggering signal within 24h.\n", c.Title)
	fmt.Fprintf(b, "2. Knowledge drive drops below %.2f once the top topics are covered.\n\n", c.KnowledgeDrive)

	section(b, "Experiments")
	if len(s.UnknownTopics) > 0 {
		fmt.Fprintf(b, "- Answer-rate probe: re-ask questions about %q.\n", s.UnknownTopics[0].Topic)
	}
	bullets(b, []string{
		"Baseline: record the current signal values listed below.",
		"Change: apply the smallest action from the reflection.",
		"Observe: compare signals after the next think-cycle.",
	})

	section(b, "Baseline")
	bullets(b, c.SourceSignals)
}

var actions = map[candidate.Kind][]string{
	candidate.KindStability: {
		"Group recent errors by category and fix the most frequent one.",
		"Add a regression check for each fixed failure.",
		"Review retry and timeout settings on failing paths.",
	},
	candidate.KindLearningSprint: {
		"Research the top unanswered topics and store the findings.",
		"Add follow-up prompts that ask users for the missing context.",
	},
	candidate.KindSearchPlan: {
		"Run the search queries below and ingest the best results.",
		"Link new knowledge to the topics users ask about most.",
	},
	candidate.KindWarningReduction: {
		"Identify the noisiest warning sources.",
		"Downgrade expected conditions and fix the genuine ones.",
	},
	candidate.KindMemoryExpansion: {
		"Extract durable facts from recent conversations.",
		"Confirm stored facts with users before relying on them.",
	},
	candidate.KindHeartbeat: {
		"Review the experiment backlog and retire stale items.",
		"Spot-check a sample of recent answers for quality.",
	},
}

func section(b *strings.Builder, name string) {
	fmt.Fprintf(b, "## %s\n\n", name)
}

func bullets(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func firstN(items []string, n int) []string {
	if len(items) < n {
		return items
	}
	return items[:n]
}
