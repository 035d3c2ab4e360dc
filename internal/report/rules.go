package report

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// HeaderSignature maps a known table header shape to the section title it
// implies when the model omits (or mangles) the heading itself.
type HeaderSignature struct {
	Cells []string `yaml:"cells"`
	Title string   `yaml:"title"`
}

// Rules collects the parsing knobs that tolerate model formatting drift:
// which heading marks the source-reliability table, which hosts are
// search-tool redirects, which content shapes are injected-code failures,
// and which table headers imply which section titles.
type Rules struct {
	SourceSectionPattern  string            `yaml:"source_section_pattern"`
	RedirectHostPatterns  []string          `yaml:"redirect_host_patterns"`
	InjectedCodePatterns  []string          `yaml:"injected_code_patterns"`
	HeaderSignatures      []HeaderSignature `yaml:"header_signatures"`

	sourceSectionRe *regexp.Regexp
	injectedRes     []*regexp.Regexp
}

// DefaultRules returns the built-in rule set. A YAML rules file, when
// configured, replaces these wholesale.
func DefaultRules() *Rules {
	r := &Rules{
		SourceSectionPattern: `(?i)source\s+reliability|reliability\s+of\s+sources|source\s+assessment`,
		RedirectHostPatterns: []string{
			"vertexaisearch.cloud.google.com/grounding-api-redirect",
			"www.google.com/url",
			"google.com/search?q=",
			"r.jina.ai/",
		},
		InjectedCodePatterns: []string{
			`(?m)^\s*import\s+React`,
			`(?m)^\s*from\s+flask\s+import`,
			`(?m)^\s*const\s+express\s*=\s*require`,
			`(?m)^\s*<!DOCTYPE\s+html>`,
			`(?m)^\s*package\s+main\b`,
			`(?m)^\s*public\s+static\s+void\s+main`,
		},
		HeaderSignatures: []HeaderSignature{
			{Cells: []string{"Statement", "Status"}, Title: "Verified Facts"},
			{Cells: []string{"Claim", "Verdict"}, Title: "Claim Analysis"},
			{Cells: []string{"Question", "Answer"}, Title: "Open Questions"},
			{Cells: []string{"Date", "Event"}, Title: "Timeline"},
		},
	}
	if err := r.compile(); err != nil {
		// Built-in patterns are fixed; a compile failure here is a programming error.
		panic(err)
	}
	return r
}

// LoadRules reads a YAML rules file and compiles its patterns.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if r.SourceSectionPattern == "" {
		r.SourceSectionPattern = DefaultRules().SourceSectionPattern
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	re, err := regexp.Compile(r.SourceSectionPattern)
	if err != nil {
		return fmt.Errorf("compile source section pattern: %w", err)
	}
	r.sourceSectionRe = re

	r.injectedRes = r.injectedRes[:0]
	for _, p := range r.InjectedCodePatterns {
		cre, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("compile injected-code pattern %q: %w", p, err)
		}
		r.injectedRes = append(r.injectedRes, cre)
	}
	return nil
}

// IsSourceSectionTitle reports whether a heading denotes the
// source-reliability section, tolerant of numbering and emoji prefixes.
func (r *Rules) IsSourceSectionTitle(title string) bool {
	return r.sourceSectionRe.MatchString(title)
}

// IsInjectedCode reports whether section content matches a known
// unrelated-code signature. Such sections are model failures, not content.
func (r *Rules) IsInjectedCode(content string) bool {
	for _, re := range r.injectedRes {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// IsRedirectURL reports whether a citation URL points at a known
// proxy/redirect host rather than the direct target.
func (r *Rules) IsRedirectURL(url string) bool {
	for _, p := range r.RedirectHostPatterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// TitleForHeader returns the inferred section title for a table header row,
// or "" when no signature matches. All signature cells must appear, in
// order, among the header's cells.
func (r *Rules) TitleForHeader(headerCells []string) string {
	for _, sig := range r.HeaderSignatures {
		if headerMatches(headerCells, sig.Cells) {
			return sig.Title
		}
	}
	return ""
}

func headerMatches(cells, want []string) bool {
	i := 0
	for _, c := range cells {
		if i < len(want) && strings.EqualFold(strings.TrimSpace(c), want[i]) {
			i++
		}
	}
	return i == len(want)
}
