package contribution

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// LogoSize is the edge length given to logos that carry no explicit size.
	LogoSize = "30"
	// ThemeClass lets the site's stylesheet recolor logos per theme.
	ThemeClass = "company-logo"
	// ThemeFill replaces every concrete fill so logos follow the text color.
	ThemeFill = "currentColor"
)

var (
	xmlPrologRe  = regexp.MustCompile(`(?s)<\?xml.*?\?>`)
	doctypeRe    = regexp.MustCompile(`(?is)<!DOCTYPE[^>]*>`)
	commentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	svgOpenRe    = regexp.MustCompile(`(?s)<svg\b[^>]*>`)
	widthAttrRe  = regexp.MustCompile(`\swidth\s*=`)
	heightAttrRe = regexp.MustCompile(`\sheight\s*=`)
	classAttrRe  = regexp.MustCompile(`\s(class|className)\s*=\s*(["'])([^"']*)(["'])`)
	fillAttrRe   = regexp.MustCompile(`(\sfill\s*=\s*)(["'])([^"']*)(["'])`)
	fillStyleRe  = regexp.MustCompile(`(^|[;\s{])fill\s*:\s*([^;"'}]+)`)
	styleAttrRe  = regexp.MustCompile(`\sstyle\s*=\s*"([^"]*)"`)
	styleElemRe  = regexp.MustCompile(`(?s)(<style\b[^>]*>)(.*?)(</style>)`)
	attrNameRe   = regexp.MustCompile(`(\s)([a-zA-Z]+(?:[-:][a-zA-Z]+)+)(\s*=)`)
)

// NormalizeSVG turns an uploaded SVG into a JSX literal the registry can
// embed: prolog, doctype and comments removed, explicit size, theme class,
// theme fill, JSX attribute names.
func NormalizeSVG(raw string) (string, error) {
	svg := xmlPrologRe.ReplaceAllString(raw, "")
	svg = doctypeRe.ReplaceAllString(svg, "")
	svg = commentRe.ReplaceAllString(svg, "")

	start := strings.Index(svg, "<svg")
	end := strings.LastIndex(svg, "</svg>")
	if start < 0 || end < start {
		return "", fmt.Errorf("logo is not an <svg> document")
	}
	svg = strings.TrimSpace(svg[start : end+len("</svg>")])

	svg = rewriteFills(svg)
	svg = toJSXAttributes(svg)

	open := svgOpenRe.FindString(svg)
	if open == "" {
		return "", fmt.Errorf("logo has no <svg> opening tag")
	}
	svg = strings.Replace(svg, open, normalizeOpenTag(open), 1)
	return svg, nil
}

func normalizeOpenTag(tag string) string {
	body := strings.TrimSuffix(tag, ">")
	selfClosing := strings.HasSuffix(body, "/")
	body = strings.TrimRight(strings.TrimSuffix(body, "/"), " \t\n")

	var extra []string
	if !widthAttrRe.MatchString(body) {
		extra = append(extra, `width="`+LogoSize+`"`)
	}
	if !heightAttrRe.MatchString(body) {
		extra = append(extra, `height="`+LogoSize+`"`)
	}
	if m := classAttrRe.FindStringSubmatchIndex(body); m != nil {
		classes := body[m[6]:m[7]]
		if !hasClass(classes, ThemeClass) {
			joined := strings.TrimSpace(classes + " " + ThemeClass)
			body = body[:m[6]] + joined + body[m[7]:]
		}
	} else {
		extra = append(extra, `className="`+ThemeClass+`"`)
	}
	if len(extra) > 0 {
		body += " " + strings.Join(extra, " ")
	}
	if selfClosing {
		return body + " />"
	}
	return body + ">"
}

func hasClass(list, name string) bool {
	for _, c := range strings.Fields(list) {
		if c == name {
			return true
		}
	}
	return false
}

func rewriteFills(svg string) string {
	svg = fillAttrRe.ReplaceAllStringFunc(svg, func(m string) string {
		parts := fillAttrRe.FindStringSubmatch(m)
		if keepFill(parts[3]) {
			return m
		}
		return parts[1] + parts[2] + ThemeFill + parts[4]
	})
	return rewriteStyleFills(svg)
}

func rewriteStyleFills(svg string) string {
	replace := func(css string) string {
		return fillStyleRe.ReplaceAllStringFunc(css, func(m string) string {
			parts := fillStyleRe.FindStringSubmatch(m)
			if keepFill(parts[2]) {
				return m
			}
			return parts[1] + "fill:" + ThemeFill
		})
	}
	svg = styleAttrRe.ReplaceAllStringFunc(svg, func(m string) string {
		parts := styleAttrRe.FindStringSubmatch(m)
		return ` style="` + replace(parts[1]) + `"`
	})
	return styleElemRe.ReplaceAllStringFunc(svg, func(m string) string {
		parts := styleElemRe.FindStringSubmatch(m)
		return parts[1] + replace(parts[2]) + parts[3]
	})
}

func keepFill(v string) bool {
	v = strings.TrimSpace(v)
	return strings.EqualFold(v, "none") || strings.EqualFold(v, ThemeFill) || strings.HasPrefix(v, "url(")
}

// toJSXAttributes renames attributes React rejects in their SVG spelling and
// rewrites inline style strings and <style> bodies into JSX expressions.
func toJSXAttributes(svg string) string {
	svg = attrNameRe.ReplaceAllStringFunc(svg, func(m string) string {
		parts := attrNameRe.FindStringSubmatch(m)
		return parts[1] + jsxAttrName(parts[2]) + parts[3]
	})
	svg = strings.ReplaceAll(svg, " class=", " className=")
	svg = styleAttrRe.ReplaceAllStringFunc(svg, func(m string) string {
		parts := styleAttrRe.FindStringSubmatch(m)
		return " style={" + styleObject(parts[1]) + "}"
	})
	return styleElemRe.ReplaceAllStringFunc(svg, func(m string) string {
		parts := styleElemRe.FindStringSubmatch(m)
		css := strings.ReplaceAll(parts[2], "`", "\\`")
		return parts[1] + "{`" + css + "`}" + parts[3]
	})
}

func jsxAttrName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "data-") || strings.HasPrefix(lower, "aria-") {
		return name
	}
	// xmlns:xlink stays namespaced in React as xmlnsXlink.
	return camelCase(name, "-:")
}

func camelCase(name, seps string) string {
	var b strings.Builder
	upper := false
	for _, r := range name {
		if strings.ContainsRune(seps, r) {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// styleObject converts "fill:#fff; stroke-width: 2" into {{ fill: "#fff", strokeWidth: "2" }}.
func styleObject(css string) string {
	props := map[string]string{}
	for _, decl := range strings.Split(css, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		props[camelCase(k, "-")] = v
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %q", k, props[k]))
	}
	return "{ " + strings.Join(pairs, ", ") + " }"
}
