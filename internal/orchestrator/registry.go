package orchestrator

import "fmt"

// Tier classifies a model as the expensive/capable or the cheap/fast backend.
type Tier string

const (
	TierHigh Tier = "high"
	TierLow  Tier = "low"
)

// ModelDescriptor is a static registry entry describing one selectable model.
// Entries are loaded once at startup and never mutated afterwards.
type ModelDescriptor struct {
	ID                  string   `json:"id"`
	Provider            string   `json:"-"`
	Deployment          string   `json:"-"`
	DisplayName         string   `json:"display_name"`
	Description         string   `json:"description"`
	MaxTokens           int      `json:"max_tokens"`
	Capabilities        []string `json:"capabilities"`
	ComplexityThreshold int      `json:"-"`
	CostPer1KTokens     float64  `json:"-"`
	Tier                Tier     `json:"-"`
}

// Registry holds the selectable models in insertion order. It is read-only
// after construction and safe for concurrent use.
type Registry struct {
	order  []string
	models map[string]ModelDescriptor
	high   string
	low    string
}

// NewRegistry builds a registry from descriptors. Exactly one high-tier and
// one low-tier entry are required; anything else fails at startup.
func NewRegistry(descriptors []ModelDescriptor) (*Registry, error) {
	r := &Registry{models: make(map[string]ModelDescriptor, len(descriptors))}

	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("model descriptor missing id")
		}
		if _, dup := r.models[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", d.ID)
		}
		switch d.Tier {
		case TierHigh:
			if r.high != "" {
				return nil, fmt.Errorf("multiple high-tier models (%q, %q)", r.high, d.ID)
			}
			r.high = d.ID
		case TierLow:
			if r.low != "" {
				return nil, fmt.Errorf("multiple low-tier models (%q, %q)", r.low, d.ID)
			}
			r.low = d.ID
		default:
			return nil, fmt.Errorf("model %q has unknown tier %q", d.ID, d.Tier)
		}
		r.order = append(r.order, d.ID)
		r.models[d.ID] = d
	}

	if r.high == "" {
		return nil, fmt.Errorf("no high-tier model defined")
	}
	if r.low == "" {
		return nil, fmt.Errorf("no low-tier model defined")
	}

	return r, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (ModelDescriptor, bool) {
	d, ok := r.models[id]
	return d, ok
}

// HighTier returns the expensive/capable model descriptor.
func (r *Registry) HighTier() ModelDescriptor {
	return r.models[r.high]
}

// LowTier returns the cheap/fast model descriptor.
func (r *Registry) LowTier() ModelDescriptor {
	return r.models[r.low]
}

// List returns all descriptors in insertion order.
func (r *Registry) List() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// DefaultRegistry returns the stock two-model registry.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]ModelDescriptor{
		{
			ID:                  "gpt-4",
			Provider:            "azure",
			Deployment:          "gpt-4",
			DisplayName:         "GPT-4",
			Description:         "Most capable model for complex reasoning and analysis",
			MaxTokens:           8192,
			Capabilities:        []string{"complex_reasoning", "code_generation", "analysis", "creative_writing"},
			ComplexityThreshold: 4,
			CostPer1KTokens:     0.03,
			Tier:                TierHigh,
		},
		{
			ID:                  "gpt-35-turbo",
			Provider:            "azure",
			Deployment:          "gpt-35-turbo",
			DisplayName:         "GPT-3.5 Turbo",
			Description:         "Fast and efficient for straightforward tasks",
			MaxTokens:           4096,
			Capabilities:        []string{"general_chat", "simple_code", "summarization", "translation"},
			ComplexityThreshold: 2,
			CostPer1KTokens:     0.002,
			Tier:                TierLow,
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}
