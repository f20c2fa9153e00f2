package entity

import "strings"

// User is the code-host account behind a contribution credential.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// NormalizeLogin trims surrounding whitespace from a login.
func NormalizeLogin(raw string) string {
	return strings.TrimSpace(raw)
}

// SameLogin compares logins the way the code host does: case-insensitively.
func SameLogin(a, b string) bool {
	return strings.EqualFold(NormalizeLogin(a), NormalizeLogin(b))
}

func (u User) IsZero() bool {
	return NormalizeLogin(u.Login) == ""
}
