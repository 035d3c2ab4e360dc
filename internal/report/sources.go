package report

import (
	"regexp"
	"strings"

	"github.com/factlens/factlens/internal/models"
)

// markdownLinkRe captures [name](url) in a table cell.
var markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// ExtractSources locates the source-reliability section and parses its table
// body into records, in table order. Rows that do not carry at least four
// cells and a parseable markdown link in the first cell are model formatting
// errors and are dropped silently; extraction itself never fails.
//
// Expected column order: Source | Assessment | Rating | Notes.
func ExtractSources(text string, rules *Rules) []models.ExtractedSource {
	if rules == nil {
		rules = DefaultRules()
	}

	section := sourceSectionBody(text, rules)
	if section == "" {
		return nil
	}

	var out []models.ExtractedSource
	headerSkipped := false
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			continue
		}
		if isSeparatorRow(trimmed) {
			continue
		}
		if !headerSkipped {
			headerSkipped = true
			continue
		}

		cells := splitTableRow(trimmed)
		if len(cells) < 4 {
			continue
		}
		link := markdownLinkRe.FindStringSubmatch(cells[0])
		if link == nil {
			continue
		}
		out = append(out, models.ExtractedSource{
			Name:       strings.TrimSpace(link[1]),
			URL:        strings.TrimSpace(link[2]),
			Assessment: cells[1],
			Rating:     cells[2],
			Notes:      cells[3],
		})
	}
	return out
}

// sourceSectionBody returns the text between the source-reliability heading
// and the next heading (or end of report).
func sourceSectionBody(text string, rules *Rules) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if start >= 0 {
			return strings.Join(lines[start:i], "\n")
		}
		if rules.IsSourceSectionTitle(m[2]) {
			start = i + 1
		}
	}
	if start >= 0 {
		return strings.Join(lines[start:], "\n")
	}
	return ""
}
