// Package search builds the flattened company/product index and answers
// fuzzy queries against it.
package search

import (
	"strings"
	"unicode"

	"contactdir/internal/gateway/entity"
)

type EntryType string

const (
	TypeCompany EntryType = "company"
	TypeProduct EntryType = "product"
)

// DefaultExcludedIDs are dataset ids kept only so old links can redirect.
var DefaultExcludedIDs = []string{"twitter"}

// Entry is one searchable row. Entries are never mutated after BuildIndex.
type Entry struct {
	Type        EntryType `json:"type"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CompanyID   string    `json:"companyId"`
	CompanyName string    `json:"companyName"`
	Handles     []string  `json:"handles,omitempty"`
}

func (e Entry) clone() Entry {
	if e.Handles != nil {
		e.Handles = append([]string(nil), e.Handles...)
	}
	return e
}

// BuildIndex flattens companies into one company entry each followed by one
// product entry per contact, in dataset order.
func BuildIndex(companies []entity.Company, excluded []string) []Entry {
	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[strings.TrimSpace(id)] = struct{}{}
	}

	var entries []Entry
	for _, c := range companies {
		if Excluded(c.ID, skip) {
			continue
		}
		entries = append(entries, Entry{
			Type:        TypeCompany,
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			CompanyID:   c.ID,
			CompanyName: c.Name,
		})
		for _, cat := range c.Categories {
			for _, contact := range cat.Contacts {
				entries = append(entries, Entry{
					Type:        TypeProduct,
					ID:          c.ID + "-" + Slugify(contact.Product),
					Name:        contact.Product,
					Description: contact.Product + " at " + c.Name,
					CompanyID:   c.ID,
					CompanyName: c.Name,
					Handles:     append([]string(nil), contact.Handles...),
				})
			}
		}
	}
	return entries
}

// Excluded reports whether a dataset id never enters the index: templates,
// schemas, any underscore-prefixed id and the ids in skip.
func Excluded(id string, skip map[string]struct{}) bool {
	if id == "" || strings.HasPrefix(id, "_") {
		return true
	}
	_, ok := skip[id]
	return ok
}

// Slugify lowercases s and joins its alphanumeric runs with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
