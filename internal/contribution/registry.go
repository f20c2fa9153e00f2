package contribution

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const (
	// RegistryPath is the generated source file mapping logo keys to JSX.
	RegistryPath = "src/components/company-logos.tsx"
	// RegistryMap is the exported map inside RegistryPath.
	RegistryMap = "companyLogos"
	// RegistryMarker closes the map; new entries go right before it.
	RegistryMarker = "\n};"
)

var (
	// ErrRegistryMarkerNotFound means the registry document does not have the
	// shape injection relies on. It is never retried.
	ErrRegistryMarkerNotFound = errors.New("logo registry closing marker not found")
	// ErrRegistryMissing means no registry document could be read in live mode.
	ErrRegistryMissing = errors.New("logo registry file not found on branch or default branch")
)

// Injector splices a logo into a registry document.
type Injector interface {
	Inject(registry, key, rawSVG string) (string, error)
}

// RegistryInjector edits the companyLogos map of a TSX registry. Zero value
// targets RegistryMap and RegistryMarker.
type RegistryInjector struct {
	MapName string
	Marker  string
}

var _ Injector = RegistryInjector{}

// InjectLogo injects with the default RegistryInjector.
func InjectLogo(registry, key, rawSVG string) (string, error) {
	return RegistryInjector{}.Inject(registry, key, rawSVG)
}

func (ri RegistryInjector) mapName() string {
	if ri.MapName != "" {
		return ri.MapName
	}
	return RegistryMap
}

func (ri RegistryInjector) marker() string {
	if ri.Marker != "" {
		return ri.Marker
	}
	return RegistryMarker
}

// Inject replaces the entry for key when present, otherwise inserts a new
// entry immediately before the closing marker.
func (ri RegistryInjector) Inject(registry, key, rawSVG string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("inject logo: empty key")
	}
	bodyStart := ri.bodyStart(registry)
	rel := strings.Index(registry[bodyStart:], ri.marker())
	if rel < 0 {
		return "", ErrRegistryMarkerNotFound
	}
	markerAt := bodyStart + rel

	svg, err := NormalizeSVG(rawSVG)
	if err != nil {
		return "", fmt.Errorf("inject logo %q: %w", key, err)
	}
	entry := formatEntry(key, svg)

	if start, end, ok := findEntry(registry, bodyStart, markerAt, key); ok {
		return registry[:start] + entry + registry[end:], nil
	}

	head := registry[:markerAt]
	trimmed := strings.TrimRight(head, " \t\r\n")
	if n := len(trimmed); n > 0 && trimmed[n-1] != ',' && trimmed[n-1] != '{' {
		head = trimmed + ","
	}
	return head + "\n" + strings.TrimSuffix(entry, "\n") + registry[markerAt:], nil
}

// bodyStartRes caches the map-opening pattern per map name.
var bodyStartRes sync.Map // map name -> *regexp.Regexp

func bodyStartRe(mapName string) *regexp.Regexp {
	if re, ok := bodyStartRes.Load(mapName); ok {
		return re.(*regexp.Regexp)
	}
	re, _ := bodyStartRes.LoadOrStore(mapName, regexp.MustCompile(regexp.QuoteMeta(mapName)+`[^=]*=\s*\{`))
	return re.(*regexp.Regexp)
}

func (ri RegistryInjector) bodyStart(doc string) int {
	if loc := bodyStartRe(ri.mapName()).FindStringIndex(doc); loc != nil {
		return loc[1]
	}
	return 0
}

func formatEntry(key, svg string) string {
	var b strings.Builder
	b.WriteString("  " + quoteKey(key) + ": (\n")
	for _, line := range strings.Split(svg, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("    " + strings.TrimRight(line, " \t\r") + "\n")
	}
	b.WriteString("  ),\n")
	return b.String()
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

func quoteKey(key string) string {
	if identRe.MatchString(key) {
		return key
	}
	return fmt.Sprintf("%q", key)
}

var entryKeyRe = regexp.MustCompile(`(?m)^[ \t]*(?:"([^"\n]+)"|'([^'\n]+)'|([A-Za-z_$][A-Za-z0-9_$]*))[ \t]*:[ \t]*([(<])`)

// findEntry locates the full lines holding key's entry, including its
// trailing comma and newline.
func findEntry(doc string, from, to int, key string) (start, end int, ok bool) {
	body := doc[from:to]
	for _, m := range entryKeyRe.FindAllStringSubmatchIndex(body, -1) {
		if entryKeyName(body, m) != key {
			continue
		}
		start = from + m[0]
		valueAt := from + m[8]
		stop, found := valueEnd(doc, valueAt, to)
		if !found {
			return 0, 0, false
		}
		end = stop
		if end < len(doc) && doc[end] == ',' {
			end++
		}
		if end < len(doc) && doc[end] == '\n' {
			end++
		}
		return start, end, true
	}
	return 0, 0, false
}

func entryKeyName(body string, m []int) string {
	for g := 1; g <= 3; g++ {
		if m[2*g] >= 0 {
			return body[m[2*g]:m[2*g+1]]
		}
	}
	return ""
}

// valueEnd returns the offset just past an entry value that starts at i with
// either a parenthesised JSX expression or a bare <svg> element.
func valueEnd(doc string, i, limit int) (int, bool) {
	if doc[i] == '(' {
		depth := 0
		for j := i; j < limit; j++ {
			switch doc[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return j + 1, true
				}
			}
		}
		return 0, false
	}
	closeAt := strings.Index(doc[i:limit], "</svg>")
	if closeAt < 0 {
		return 0, false
	}
	return i + closeAt + len("</svg>"), true
}

// RegistryKeys lists the map's keys in document order.
func RegistryKeys(registry string) []string {
	ri := RegistryInjector{}
	from := ri.bodyStart(registry)
	to := len(registry)
	if rel := strings.Index(registry[from:], ri.marker()); rel >= 0 {
		to = from + rel
	}
	body := registry[from:to]
	var keys []string
	for _, m := range entryKeyRe.FindAllStringSubmatchIndex(body, -1) {
		keys = append(keys, entryKeyName(body, m))
	}
	return keys
}

// MockRegistry is the registry used in test mode when neither branch has one.
const MockRegistry = `import type { JSX } from "react";

export const companyLogos: Record<string, JSX.Element> = {
  placeholder: (
    <svg width="30" height="30" viewBox="0 0 30 30" className="company-logo">
      <rect width="30" height="30" rx="6" fill="currentColor" />
    </svg>
  ),
};
`
