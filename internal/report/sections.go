package report

import (
	"regexp"
	"strings"

	"github.com/factlens/factlens/internal/models"
)

// headingRe matches level-2/3 markdown headings, optionally numbered
// ("## 3. Title", "### 2) Title"). Emoji prefixes survive into the capture
// and are stripped by cleanTitle. The remainder must not start with another
// "#", so level-4+ headings stay body text instead of truncating to level 3.
var headingRe = regexp.MustCompile(`^(#{2,3})\s*(?:\d+[.)]\s*)?([^#].*)?$`)

// preambleRe recognizes the two-line generated-timestamp/disclaimer preamble
// some report kinds open with.
var preambleRe = regexp.MustCompile(`(?i)^\*?_?\s*(report\s+generated|generated\s+(on|at)|as\s+of)\b`)

// ParseSections splits a completed report into titled sections. It never
// fails: malformed markdown degrades to fewer or coarser sections. The
// source-reliability section is recognized but excluded here; it feeds the
// extractor, not the rendered section list.
func ParseSections(text string, rules *Rules) []models.ParsedReportSection {
	if rules == nil {
		rules = DefaultRules()
	}
	lines := strings.Split(text, "\n")

	var sections []models.ParsedReportSection
	var preamble *models.ParsedReportSection
	var current *models.ParsedReportSection
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		body.Reset()
		switch {
		case rules.IsSourceSectionTitle(current.Title), rules.IsSourceSectionTitle(current.RawHeaderLine):
			// handled by the source table extractor
		case rules.IsInjectedCode(current.Content):
			// model failure, drop
		default:
			sections = append(sections, *current)
		}
		current = nil
	}

	for i, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m != nil && strings.TrimSpace(m[2]) != "" {
			flush()
			current = &models.ParsedReportSection{
				Title:         cleanTitle(m[2]),
				RawHeaderLine: line,
				HeadingLevel:  len(m[1]),
			}
			continue
		}

		if current != nil {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		// Before the first heading: first two matching lines become the
		// preamble; everything else pre-heading is appended to it rather
		// than growing a spurious section.
		if preamble == nil {
			preamble = &models.ParsedReportSection{HeadingLevel: 0}
			if preambleRe.MatchString(line) && i+1 < len(lines) {
				preamble.Title = "Preamble"
			}
		}
		if strings.TrimSpace(line) != "" || preamble.Content != "" {
			if preamble.Content != "" {
				preamble.Content += "\n"
			}
			preamble.Content += line
		}
	}
	flush()

	// Sections that lost their heading title get one inferred from a known
	// table header; those with neither keep the raw heading text.
	for i := range sections {
		if sections[i].Title == "" {
			if title := inferTitleFromTable(sections[i].Content, rules); title != "" {
				sections[i].Title = title
			}
		}
	}

	if preamble != nil && strings.TrimSpace(preamble.Content) != "" {
		preamble.Content = strings.TrimSpace(preamble.Content)
		sections = append([]models.ParsedReportSection{*preamble}, sections...)
	}
	return sections
}

// cleanTitle strips markdown emphasis, emoji prefixes, and trailing
// punctuation from a heading capture.
func cleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	t = strings.Trim(t, "*_")
	// Drop leading non-alphanumeric runes (emoji, bullets) up to the first
	// letter or digit. A heading with no alphanumeric content has no usable
	// title at all.
	start := -1
	for i, r := range t {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}
	t = strings.TrimRight(strings.TrimSpace(t[start:]), ":")
	return strings.TrimSpace(t)
}

// inferTitleFromTable matches the section's leading table header row against
// the known header signatures.
func inferTitleFromTable(content string, rules *Rules) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "|") {
			return ""
		}
		return rules.TitleForHeader(splitTableRow(line))
	}
	return ""
}

// splitTableRow splits a markdown table line into trimmed cells, dropping
// leading/trailing pipe delimiters.
func splitTableRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

// isSeparatorRow reports whether a table line is the |---|---| divider.
func isSeparatorRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") && !strings.HasPrefix(trimmed, "-") {
		return false
	}
	for _, r := range trimmed {
		switch r {
		case '|', '-', ':', ' ':
		default:
			return false
		}
	}
	return strings.Contains(trimmed, "-")
}
