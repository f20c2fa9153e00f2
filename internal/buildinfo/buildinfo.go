// Package buildinfo holds version metadata set at build time via -ldflags.
package buildinfo

import "strings"

var (
	// Version is the semantic version or a custom string.
	Version = "dev"
	Commit  = ""
	// Date is the build time, usually RFC3339.
	Date    = ""
	BuiltBy = ""
)

// Summary returns a single-line version string.
func Summary() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	parts := make([]string, 0, 2)
	if Commit != "" {
		parts = append(parts, Commit)
	}
	if Date != "" {
		parts = append(parts, Date)
	}
	if len(parts) == 0 {
		return v
	}
	return v + " (" + strings.Join(parts, ", ") + ")"
}
