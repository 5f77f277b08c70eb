package gitsync

import (
	"strconv"
	"strings"
	"time"
)

// DefaultMessage is the commit message template used when none is set.
const DefaultMessage = "noteport: {{direction}} sync of {{count}} files at {{date}}"

// renderMessage expands the {{date}}, {{count}} and {{direction}}
// placeholders. Unknown placeholders are left as written.
func renderMessage(tmpl string, now time.Time, count int, dir Direction) string {
	if tmpl == "" {
		tmpl = DefaultMessage
	}
	return strings.NewReplacer(
		"{{date}}", now.UTC().Format("2006-01-02 15:04:05Z"),
		"{{count}}", strconv.Itoa(count),
		"{{direction}}", string(dir),
	).Replace(tmpl)
}
