// Package markdown splits generated markdown artifacts into frontmatter,
// title and "## " sections.
package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	itemRe = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s+(.*)$`)
	tagRe  = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Section is a level-two heading and the text below it.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Items returns the bullet and numbered list entries of the section.
func (s Section) Items() []string {
	var out []string
	for _, line := range strings.Split(s.Body, "\n") {
		if m := itemRe.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

// Document is a parsed markdown file.
type Document struct {
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Title       string                 `json:"title"`
	Body        string                 `json:"-"`
	Sections    []Section              `json:"sections"`
	Tags        []string               `json:"tags,omitempty"`
}

// Section looks up a section by heading, case-insensitively.
func (d *Document) Section(heading string) (Section, bool) {
	for _, s := range d.Sections {
		if strings.EqualFold(s.Heading, heading) {
			return s, true
		}
	}
	return Section{}, false
}

// Parse extracts frontmatter, title, sections and tags from raw markdown.
func Parse(data []byte) (*Document, error) {
	fm, body := splitFrontmatter(data)
	return &Document{
		Frontmatter: fm,
		Title:       deriveTitle(fm, body),
		Body:        body,
		Sections:    splitSections(body),
		Tags:        extractTags(body, fm),
	}, nil
}

// splitFrontmatter separates YAML frontmatter between leading --- delimiters
// from the body. Missing or invalid frontmatter leaves the whole input as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	var fm map[string]interface{}
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, string(data)
	}

	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return fm, body
}

func splitSections(body string) []Section {
	var (
		out     []Section
		current *Section
		buf     []string
	)
	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(strings.Join(buf, "\n"))
			out = append(out, *current)
		}
		buf = buf[:0]
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = &Section{Heading: strings.TrimSpace(line[3:])}
			continue
		}
		if current != nil {
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

// extractTags merges the frontmatter "tags" list with inline #tags.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	if raw, ok := fm["tags"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle prefers the frontmatter title, then the first H1 heading.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
