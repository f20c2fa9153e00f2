package contribution

import (
	"fmt"
	"strings"
	"time"
)

const (
	branchPrefixAdd  = "api-add"
	branchPrefixEdit = "api-edit"
)

// GenerateBranchName returns {api-add|api-edit}-{companyID}-{username}-{unixMillis}.
// Two calls in the same millisecond for the same inputs collide and the
// second run commits onto the branch the first one created.
func GenerateBranchName(companyID string, isEdit bool, username string, now time.Time) string {
	prefix := branchPrefixAdd
	if isEdit {
		prefix = branchPrefixEdit
	}
	return fmt.Sprintf("%s-%s-%s-%d", prefix, refSafe(companyID), refSafe(username), now.UnixMilli())
}

// refSafe drops characters git forbids in ref names.
func refSafe(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.' || r == '/':
			return '-'
		default:
			return -1
		}
	}, s)
}
