package contribution

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoEntryRegistry = `import type { JSX } from "react";

export const companyLogos: Record<string, JSX.Element> = {
  a: (
    <svg width="30" height="30" className="company-logo"></svg>
  ),
  b: (
    <svg width="30" height="30" className="company-logo"></svg>
  ),
};
`

func TestInjectLogo_AppendsBeforeMarker(t *testing.T) {
	out, err := InjectLogo(twoEntryRegistry, "c", `<svg><path fill="red"/></svg>`)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, RegistryKeys(out))
	assert.True(t, strings.HasSuffix(out, "  ),\n};\n"))
	assert.Contains(t, out, `fill="currentColor"`)
	assert.Contains(t, out, `width="30" height="30"`)
}

func TestInjectLogo_ReplacesExistingEntry(t *testing.T) {
	once, err := InjectLogo(twoEntryRegistry, "c", `<svg><path fill="red"/></svg>`)
	require.NoError(t, err)
	twice, err := InjectLogo(once, "c", `<svg><circle r="4"/></svg>`)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, RegistryKeys(twice))
	assert.Equal(t, 1, strings.Count(twice, "  c: ("))
	assert.Contains(t, twice, `<circle r="4"/>`)
	assert.NotContains(t, twice, "<path")
}

func TestInjectLogo_ReplacesMiddleEntryInPlace(t *testing.T) {
	out, err := InjectLogo(twoEntryRegistry, "a", `<svg><rect/></svg>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, RegistryKeys(out))
	assert.Contains(t, out, "<rect/>")
}

func TestInjectLogo_QuotesHyphenatedKeys(t *testing.T) {
	out, err := InjectLogo(twoEntryRegistry, "widgets-co", `<svg></svg>`)
	require.NoError(t, err)
	assert.Contains(t, out, `  "widgets-co": (`)
	assert.Equal(t, []string{"a", "b", "widgets-co"}, RegistryKeys(out))
}

func TestInjectLogo_AddsMissingTrailingComma(t *testing.T) {
	doc := "export const companyLogos = {\n  a: (\n    <svg></svg>\n  )\n};\n"
	out, err := InjectLogo(doc, "b", `<svg></svg>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, RegistryKeys(out))
	assert.Contains(t, out, "  ),\n  b: (")
}

func TestInjectLogo_EmptyMap(t *testing.T) {
	doc := "export const companyLogos = {\n};\n"
	out, err := InjectLogo(doc, "acme", `<svg></svg>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, RegistryKeys(out))
}

func TestInjectLogo_MissingMarker(t *testing.T) {
	doc := "export const companyLogos = {\n  a: (<svg></svg>),"
	_, err := InjectLogo(doc, "b", `<svg></svg>`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistryMarkerNotFound))
}

func TestInjectLogo_MockRegistry(t *testing.T) {
	out, err := InjectLogo(MockRegistry, "acme", `<svg></svg>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"placeholder", "acme"}, RegistryKeys(out))
}

func TestBodyStartPatternIsCompiledOncePerMap(t *testing.T) {
	assert.Same(t, bodyStartRe(RegistryMap), bodyStartRe(RegistryMap))
	assert.NotSame(t, bodyStartRe(RegistryMap), bodyStartRe("partnerLogos"))

	doc := "export const companyLogos = {\n  a: (<svg></svg>),\n};\nexport const partnerLogos = {\n};\n"
	out, err := RegistryInjector{MapName: "partnerLogos"}.Inject(doc, "acme", `<svg></svg>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, RegistryKeys(out[:strings.Index(out, "export const partnerLogos")]))
	assert.Contains(t, out[strings.Index(out, "export const partnerLogos"):], "  acme: (")
}
