package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SchemaRef is written as the first key of every company data file.
const SchemaRef = "../schema.json"

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Company is one directory record as stored in data/companies/{id}.json.
type Company struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	LogoType    string     `json:"logoType"`
	Website     string     `json:"website,omitempty"`
	Docs        string     `json:"docs,omitempty"`
	GitHub      string     `json:"github,omitempty"`
	Discord     string     `json:"discord,omitempty"`
	Categories  []Category `json:"categories"`
}

// Category groups the contacts of a company, e.g. "Support" or "Developer Relations".
type Category struct {
	Name     string    `json:"name"`
	Contacts []Contact `json:"contacts"`
}

// Contact is a product (unique within its category) and the handles that answer for it.
type Contact struct {
	Product string   `json:"product"`
	Handles []string `json:"handles"`
	Email   string   `json:"email,omitempty"`
	Discord string   `json:"discord,omitempty"`
}

// canonicalCompany fixes the on-disk key order: $schema first, then the record.
type canonicalCompany struct {
	Schema string `json:"$schema"`
	Company
}

// CanonicalJSON renders c the way data files are committed: $schema first,
// fixed key order, two-space indent, trailing newline.
func CanonicalJSON(c Company) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(canonicalCompany{Schema: SchemaRef, Company: c}); err != nil {
		return nil, fmt.Errorf("encode company %q: %w", c.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeCompany parses a data file. The $schema key is accepted and dropped.
func DecodeCompany(data []byte) (Company, error) {
	var in canonicalCompany
	if err := json.Unmarshal(data, &in); err != nil {
		return Company{}, err
	}
	return in.Company, nil
}

// IsSlug reports whether id is lowercase alphanumeric words joined by single hyphens.
func IsSlug(id string) bool {
	return slugPattern.MatchString(id)
}

// Validate checks the structural invariants every published record must hold.
func (c Company) Validate() error {
	if !IsSlug(c.ID) {
		return fmt.Errorf("company id %q must be lowercase alphanumeric with hyphens", c.ID)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("company %q: name is required", c.ID)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("company %q: at least one category is required", c.ID)
	}
	for _, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("company %q: category name is required", c.ID)
		}
		if len(cat.Contacts) == 0 {
			return fmt.Errorf("company %q: category %q has no contacts", c.ID, cat.Name)
		}
		seen := make(map[string]struct{}, len(cat.Contacts))
		for _, ct := range cat.Contacts {
			product := strings.TrimSpace(ct.Product)
			if product == "" {
				return fmt.Errorf("company %q: category %q has a contact without product", c.ID, cat.Name)
			}
			if _, dup := seen[product]; dup {
				return fmt.Errorf("company %q: product %q is listed twice in %q", c.ID, product, cat.Name)
			}
			seen[product] = struct{}{}
			if len(ct.Handles) == 0 {
				return fmt.Errorf("company %q: %q has no handles", c.ID, product)
			}
		}
	}
	return nil
}

// UniqueHandles returns the handles of c de-duplicated case-insensitively,
// in first-seen order and with their original casing.
func (c Company) UniqueHandles() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, cat := range c.Categories {
		for _, ct := range cat.Contacts {
			for _, h := range ct.Handles {
				key := strings.ToLower(strings.TrimSpace(h))
				if key == "" {
					continue
				}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, h)
			}
		}
	}
	return out
}

// ContactCount is the number of (category, contact) pairs.
func (c Company) ContactCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Contacts)
	}
	return n
}
