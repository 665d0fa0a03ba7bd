// Package orchestrator routes chat queries to the optimal model. A fixed,
// auditable rule set scores each query for complexity; the selector applies
// user overrides and score thresholds on top of a static model registry.
package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Analysis is the complexity breakdown for a single query. TotalScore is
// always the sum of the three component scores; Factors lists the signals
// that fired in evaluation order (length, keyword, structure).
type Analysis struct {
	LengthScore      int      `json:"length_score"`
	KeywordScore     int      `json:"keyword_score"`
	StructureScore   int      `json:"structure_score"`
	TotalScore       int      `json:"total_score"`
	Factors          []string `json:"factors"`
	RecommendedModel string   `json:"recommended_model,omitempty"`
	SelectionReason  string   `json:"selection_reason,omitempty"`
	WasAutoSelected  bool     `json:"was_auto_selected"`
}

// Matched case-sensitively against the raw query.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),
	regexp.MustCompile(`def\s+\w+`),
	regexp.MustCompile(`function\s+\w+`),
	regexp.MustCompile(`class\s+\w+`),
	regexp.MustCompile(`import\s+`),
	regexp.MustCompile(`from\s+\w+\s+import`),
	regexp.MustCompile(`=>`),
	regexp.MustCompile(`\bconst\b`),
	regexp.MustCompile(`\blet\b`),
}

var numberedListPattern = regexp.MustCompile(`\d+\.\s+`)

// Orchestrator scores queries and selects models. It holds only read-only
// data, so a single instance is safe for concurrent use without locks.
type Orchestrator struct {
	registry *Registry
	lexicon  Lexicon
}

// New builds an orchestrator over the given registry and lexicon.
func New(registry *Registry, lexicon Lexicon) *Orchestrator {
	return &Orchestrator{registry: registry, lexicon: lexicon}
}

// Registry exposes the model registry backing this orchestrator.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Analyze scores a query for complexity. It is a total function: any input,
// including the empty string, yields a valid breakdown.
func (o *Orchestrator) Analyze(query string) Analysis {
	var a Analysis
	a.Factors = []string{}

	// 1. Length.
	switch length := utf8.RuneCountInString(query); {
	case length > 1000:
		a.LengthScore = 3
		a.Factors = append(a.Factors, "Very long query (>1000 chars)")
	case length > 500:
		a.LengthScore = 2
		a.Factors = append(a.Factors, "Long query (>500 chars)")
	case length > 200:
		a.LengthScore = 1
		a.Factors = append(a.Factors, "Medium length query")
	}

	// 2. Keywords. High and medium are additive substring checks; an exact
	// match against a low keyword zeroes the keyword score afterwards.
	lower := strings.ToLower(query)

	var highMatches []string
	for _, kw := range o.lexicon.High {
		if strings.Contains(lower, kw) {
			highMatches = append(highMatches, kw)
		}
	}
	if len(highMatches) > 0 {
		a.KeywordScore += 2
		if len(highMatches) > 3 {
			highMatches = highMatches[:3]
		}
		a.Factors = append(a.Factors, "High complexity keywords: "+strings.Join(highMatches, ", "))
	}

	for _, kw := range o.lexicon.Medium {
		if strings.Contains(lower, kw) {
			a.KeywordScore++
			a.Factors = append(a.Factors, "Medium complexity keywords detected")
			break
		}
	}

	trimmed := strings.TrimSpace(lower)
	for _, kw := range o.lexicon.Low {
		if trimmed == kw {
			a.KeywordScore = 0
			a.Factors = append(a.Factors, "Simple greeting/response")
			break
		}
	}

	// 3. Structure. The three checks are independent and additive.
	for _, p := range codePatterns {
		if p.MatchString(query) {
			a.StructureScore += 2
			a.Factors = append(a.Factors, "Contains code or technical content")
			break
		}
	}

	if strings.Count(query, "?") > 2 {
		a.StructureScore++
		a.Factors = append(a.Factors, "Multiple questions detected")
	}

	if numberedListPattern.MatchString(query) {
		a.StructureScore++
		a.Factors = append(a.Factors, "Structured list/steps detected")
	}

	a.TotalScore = a.LengthScore + a.KeywordScore + a.StructureScore

	return a
}

// SelectModel picks the model for a query. A preferred model present in the
// registry always wins; an unknown preference is silently ignored and the
// score thresholds decide. The analysis is computed in every case so callers
// can log it.
func (o *Orchestrator) SelectModel(query, preferredModel string) (string, Analysis) {
	if preferredModel != "" {
		if _, ok := o.registry.Lookup(preferredModel); ok {
			a := o.Analyze(query)
			a.RecommendedModel = preferredModel
			a.SelectionReason = "User specified model"
			a.WasAutoSelected = false
			return preferredModel, a
		}
	}

	a := o.Analyze(query)

	high := o.registry.HighTier()
	low := o.registry.LowTier()

	// Scores 2-3 and 0-1 both route to the low tier; only the reason text
	// differs. Intentional, do not merge the bands.
	var selected string
	switch {
	case a.TotalScore >= 4:
		selected = high.ID
		a.SelectionReason = fmt.Sprintf("High complexity query - using %s for best results", high.DisplayName)
	case a.TotalScore >= 2:
		selected = low.ID
		a.SelectionReason = fmt.Sprintf("Medium complexity - %s is efficient", low.DisplayName)
	default:
		selected = low.ID
		a.SelectionReason = fmt.Sprintf("Simple query - using fast %s", low.DisplayName)
	}

	a.RecommendedModel = selected
	a.WasAutoSelected = true

	return selected, a
}

// ModelConfig returns the descriptor for id, falling back to the low-tier
// model when the id is unknown.
func (o *Orchestrator) ModelConfig(id string) ModelDescriptor {
	if d, ok := o.registry.Lookup(id); ok {
		return d
	}
	return o.registry.LowTier()
}

// EstimateTokens gives a rough token count (~4 chars per token).
func (o *Orchestrator) EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// AvailableModels lists the registry in insertion order.
func (o *Orchestrator) AvailableModels() []ModelDescriptor {
	return o.registry.List()
}
