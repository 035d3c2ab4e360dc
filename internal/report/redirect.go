package report

import (
	"strings"

	"github.com/factlens/factlens/internal/models"
)

// fuzzyAcceptThreshold is the minimum containment-ratio score for a fuzzy
// title match to rewrite a redirect URL.
const fuzzyAcceptThreshold = 0.7

// CorrectRedirects rewrites every markdown link whose URL matches a known
// proxy/redirect host to the grounding source's direct URL. Matching is by
// normalized link title: exact first, then best containment-ratio fuzzy
// match above the threshold. Unmatched links are left untouched rather than
// broken. Must run before source extraction so extracted assessments carry
// directly dereferenceable URLs.
func CorrectRedirects(text string, grounding []models.GroundingSource, rules *Rules) string {
	if len(grounding) == 0 {
		return text
	}
	if rules == nil {
		rules = DefaultRules()
	}

	byTitle := make(map[string]string, len(grounding))
	titles := make([]string, 0, len(grounding))
	for _, g := range grounding {
		key := normalizeTitle(g.Title)
		if key == "" || g.URI == "" {
			continue
		}
		if _, dup := byTitle[key]; !dup {
			byTitle[key] = g.URI
			titles = append(titles, key)
		}
	}

	return markdownLinkRe.ReplaceAllStringFunc(text, func(link string) string {
		m := markdownLinkRe.FindStringSubmatch(link)
		if m == nil {
			return link
		}
		name, url := m[1], m[2]
		if !rules.IsRedirectURL(url) {
			return link
		}

		key := normalizeTitle(name)
		if direct, ok := byTitle[key]; ok {
			return "[" + name + "](" + direct + ")"
		}

		if best, score := bestFuzzyTitle(key, titles); score > fuzzyAcceptThreshold {
			return "[" + name + "](" + byTitle[best] + ")"
		}
		return link
	})
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// bestFuzzyTitle scores each candidate by containment ratio: when one title
// contains the other, shorter length over longer length, else zero.
func bestFuzzyTitle(key string, candidates []string) (string, float64) {
	var best string
	var bestScore float64
	for _, c := range candidates {
		s := containmentScore(key, c)
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

func containmentScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	return float64(len(shorter)) / float64(len(longer))
}
