// Package fingerprint derives the stable digest used to deduplicate proposals
// that were regenerated from equivalent signals at a different time.
package fingerprint

import (
	"path"
	"regexp"
	"strings"

	"github.com/starford/jeebs/internal/checksum"
	"github.com/starford/jeebs/internal/models"
)

// volatileMarkers flag lines whose content changes on every regeneration.
var volatileMarkers = []string{"generated at:", "generated on:", "run timestamp:"}

var timestampPrefixRe = regexp.MustCompile(`^\d{8}-\d{6}-`)

// Of computes the fingerprint of u from its title, description, source
// signals, rationale and changes. Status, ids and timestamps are ignored.
func Of(u *models.ProposedUpdate) string {
	l := checksum.NewLines()
	l.Add(normalize(u.Title))
	l.Add(normalize(u.Description))
	for _, s := range u.SourceSignals {
		l.Add(normalize(s))
	}
	for _, r := range u.Rationale {
		l.Add(normalize(r))
	}
	for _, c := range u.Changes {
		l.Add(StablePath(c.Path))
		l.Add(ContentHash(c.NewContent))
	}
	return l.Sum()
}

// StablePath strips a leading YYYYMMDD-HHMMSS- prefix from the file name.
func StablePath(p string) string {
	dir, file := path.Split(p)
	return dir + timestampPrefixRe.ReplaceAllString(file, "")
}

// ContentHash hashes content after dropping lines carrying a volatile marker.
func ContentHash(content string) string {
	l := checksum.NewLines()
	for _, line := range strings.Split(content, "\n") {
		if !isVolatile(line) {
			l.Add(line)
		}
	}
	return l.Sum()
}

func isVolatile(line string) bool {
	l := strings.ToLower(line)
	for _, m := range volatileMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
