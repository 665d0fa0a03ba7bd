package orchestrator

import "fmt"

// Lexicon holds the three keyword sets used for complexity scoring. High and
// medium entries are matched as case-insensitive substrings; low entries only
// match when they equal the entire trimmed query. Immutable after load.
type Lexicon struct {
	High   []string
	Medium []string
	Low    []string
}

// Validate checks that every tier carries at least one keyword.
func (l Lexicon) Validate() error {
	if len(l.High) == 0 {
		return fmt.Errorf("keyword lexicon: high tier is empty")
	}
	if len(l.Medium) == 0 {
		return fmt.Errorf("keyword lexicon: medium tier is empty")
	}
	if len(l.Low) == 0 {
		return fmt.Errorf("keyword lexicon: low tier is empty")
	}
	return nil
}

// DefaultLexicon returns the stock keyword sets.
func DefaultLexicon() Lexicon {
	return Lexicon{
		High: []string{
			"analyze", "explain in detail", "compare", "contrast", "evaluate",
			"synthesize", "create a plan", "design", "architect", "optimize",
			"debug complex", "refactor", "implement algorithm",
		},
		Medium: []string{
			"summarize", "describe", "list", "what is", "how does", "example",
			"convert", "translate", "format", "write code",
		},
		Low: []string{
			"hi", "hello", "thanks", "yes", "no", "ok", "bye",
		},
	}
}
