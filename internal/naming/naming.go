// Package naming renders backup artifact names and storage keys from a
// configurable pattern.
package naming

import (
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultPattern keeps a sortable date/time prefix so that lexicographic
// order over rendered names matches chronological order. The retention
// pruner relies on this property; operator-supplied patterns without a
// sortable prefix leave pruning order undefined.
const DefaultPattern = "{date}_{time}_{db}"

// Suffix is appended to every rendered artifact name.
const Suffix = ".sql.gz"

// Render substitutes the supported placeholders in pattern for one database
// at one capture instant. Unrecognized placeholders pass through unchanged.
// Deterministic given (db, now, host); call it once per database per run so
// each artifact carries the timestamp of its own processing instant.
func Render(pattern, db string, now time.Time, host string) string {
	r := strings.NewReplacer(
		"{db}", db,
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("15-04-05"),
		"{timestamp}", strconv.FormatInt(now.Unix(), 10),
		"{hostname}", host,
	)
	return r.Replace(pattern)
}

// Key composes the full storage key for one artifact:
// {prefix}/{db}/{rendered}.sql.gz. An empty prefix yields {db}/{rendered}.sql.gz.
func Key(prefix, db, rendered string) string {
	return path.Join(prefix, db, rendered+Suffix)
}

// Prefix returns the listing prefix under which all artifacts of one
// database live.
func Prefix(prefix, db string) string {
	return path.Join(prefix, db) + "/"
}
