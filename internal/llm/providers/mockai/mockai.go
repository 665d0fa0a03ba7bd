// Package mockai is a deterministic offline provider used when no upstream
// credentials are configured. Responses echo the incoming question so the
// full chat flow stays exercisable during development.
package mockai

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/018kpmanoj/ModelZoo/internal/llm"
)

// Provider implements llm.Provider with canned responses.
type Provider struct {
	name string
	// StreamDelay paces word-by-word streaming; zero disables pacing.
	StreamDelay time.Duration
}

// NewProvider constructs a mock provider.
func NewProvider(name string) *Provider {
	return &Provider{name: name, StreamDelay: 30 * time.Millisecond}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat returns a canned response for the requested model.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}

	content := p.render(req)
	tokens := utf8.RuneCountInString(content) / 4

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: content,
		},
		FinishReason: "stop",
		Usage: llm.Usage{
			CompletionTokens: tokens,
			TotalTokens:      tokens,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Stream emits the canned response word by word.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	ch := make(chan llm.StreamChunk, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(errCh)

		words := strings.Fields(p.render(req))
		for _, w := range words {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case ch <- llm.StreamChunk{Content: w + " "}:
			}
			if p.StreamDelay > 0 {
				time.Sleep(p.StreamDelay)
			}
		}
		select {
		case ch <- llm.StreamChunk{FinishReason: "stop"}:
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return ch, errCh
}

func (p *Provider) render(req llm.ChatRequest) string {
	question := "Hello"
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			question = req.Messages[i].Content
			break
		}
	}

	if strings.Contains(req.Model, "gpt-4") {
		return fmt.Sprintf("[%s mock response]\n\nI've analyzed your request: %q\n\n"+
			"This is a canned response standing in for the capable model tier. "+
			"Configure upstream credentials to enable real completions.\n\n"+
			"Key points:\n1. Your query has been processed\n2. Model orchestration is working\n3. The system is ready for upstream integration",
			req.Model, truncate(question, 100))
	}

	return fmt.Sprintf("[%s mock response]\n\nHello! I received your message: %q\n\n"+
		"This is a canned response for development. Configure upstream credentials to enable real completions.",
		req.Model, truncate(question, 50))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
