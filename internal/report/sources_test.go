package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSourcesWellFormed(t *testing.T) {
	text := `## Summary
Fine.

## 🔗 Source Reliability
| Source | Assessment | Rating | Notes |
|---|---|---|---|
| [NOAA](https://noaa.gov/a) | Authoritative | 5 | Gov data |
| [Blog](https://blog.example.com/p) | Opinionated | 2 | Single author |
`
	srcs := ExtractSources(text, DefaultRules())
	require.Len(t, srcs, 2)
	assert.Equal(t, "NOAA", srcs[0].Name)
	assert.Equal(t, "https://noaa.gov/a", srcs[0].URL)
	assert.Equal(t, "Authoritative", srcs[0].Assessment)
	assert.Equal(t, "5", srcs[0].Rating)
	assert.Equal(t, "Gov data", srcs[0].Notes)
	assert.Equal(t, "Blog", srcs[1].Name)
}

func TestExtractSourcesSkipsMalformedRows(t *testing.T) {
	text := `## Source Reliability
| Source | Assessment | Rating | Notes |
|---|---|---|---|
| [Good](https://good.example) | Solid | 4 | ok |
| Missing link | Solid | 4 | dropped |
| [Short](https://short.example) | 3 cells only |
| [AlsoGood](https://also.example) | Fair | 3–4 | kept |
`
	srcs := ExtractSources(text, DefaultRules())
	require.Len(t, srcs, 2)
	assert.Equal(t, "https://good.example", srcs[0].URL)
	assert.Equal(t, "https://also.example", srcs[1].URL)
	assert.Equal(t, "3–4", srcs[1].Rating)
}

func TestExtractSourcesHeadingVariants(t *testing.T) {
	variants := []string{
		"## Source Reliability",
		"### 4. Source Reliability",
		"## 🧭 Reliability of Sources",
		"## Source Assessment",
	}
	for _, h := range variants {
		text := h + "\n| Source | Assessment | Rating | Notes |\n|---|---|---|---|\n| [A](https://a.example) | x | 1 | y |\n"
		srcs := ExtractSources(text, DefaultRules())
		assert.Len(t, srcs, 1, "heading %q", h)
	}
}

func TestExtractSourcesStopsAtNextHeading(t *testing.T) {
	text := `## Source Reliability
| Source | Assessment | Rating | Notes |
|---|---|---|---|
| [A](https://a.example) | x | 1 | y |

## Appendix
| [B](https://b.example) | x | 1 | y |
`
	srcs := ExtractSources(text, DefaultRules())
	require.Len(t, srcs, 1)
	assert.Equal(t, "https://a.example", srcs[0].URL)
}

func TestExtractSourcesNoSection(t *testing.T) {
	assert.Nil(t, ExtractSources("## Summary\nNo table here.", DefaultRules()))
	assert.Nil(t, ExtractSources("", DefaultRules()))
}

func TestExtractSourcesSectionWithoutRows(t *testing.T) {
	text := "## Source Reliability\nThe model forgot the table.\n"
	assert.Empty(t, ExtractSources(text, DefaultRules()))
}
