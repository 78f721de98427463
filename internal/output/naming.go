// Package output contains the destination sinks for converted artifacts.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/inkpipe/inkpipe/internal/domain"
)

var unsafeNameRuns = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces a document display name to [A-Za-z0-9._-], collapsing
// every other run of characters to a single hyphen and trimming the edges.
// The fallback is used when nothing safe remains.
func SanitizeName(name, fallback string) string {
	safe := unsafeNameRuns.ReplaceAllString(name, "-")
	safe = strings.Trim(safe, "-")
	if safe == "" {
		return fallback
	}
	return safe
}

// BuildBasename derives the artifact base filename for a document: the
// sanitized display name joined with a sortable UTC timestamp suffix taken
// from the document's modification time, or the wall clock when absent.
func BuildBasename(doc domain.Document, fallback string, now func() time.Time) string {
	ts := timestampSuffix(doc, now)
	return SanitizeName(doc.Name, fallback) + "-" + ts
}

func timestampSuffix(doc domain.Document, now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	t := now()
	if doc.ModifiedAt != nil {
		t = *doc.ModifiedAt
	}
	return t.UTC().Format("20060102150405")
}

// UniquePath returns the first path <dir>/<stem><ext>, <dir>/<stem>-1<ext>,
// <dir>/<stem>-2<ext>, ... that does not exist yet.
func UniquePath(dir, stem, ext string) string {
	for counter := 0; ; counter++ {
		candidate := stem
		if counter > 0 {
			candidate = fmt.Sprintf("%s-%d", stem, counter)
		}
		path := filepath.Join(dir, candidate+ext)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

// expandCommitTemplate substitutes the supported placeholders in a commit
// message template.
func expandCommitTemplate(template string, doc domain.Document, markdownPath string) string {
	r := strings.NewReplacer(
		"{document_name}", doc.Name,
		"{document_identifier}", doc.Identifier,
		"{markdown_path}", markdownPath,
	)
	return r.Replace(template)
}
