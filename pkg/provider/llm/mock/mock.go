// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the assistant runner sends
// correct CompletionRequests and to feed controlled responses without a live
// LLM backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    StreamChunks: []llm.Chunk{{Text: "Hello!"}, {FinishReason: "stop"}},
//	}
//	ch, err := p.StreamCompletion(ctx, req)
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/chatit-cloud/neuroos/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
//
// When Script is non-empty, successive StreamCompletion calls emit successive
// Script entries (the last entry repeats); this drives multi-round assistant
// turns where the model reacts to tool results. StreamChunks takes precedence
// when set.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamCompletion. All chunks are sent before the channel is
	// closed.
	StreamChunks []llm.Chunk

	// Script holds one full response text per StreamCompletion call, split
	// into word-sized chunks to exercise streaming consumers. Ignored when
	// StreamChunks is set.
	Script []string

	// StreamErr, if non-nil, is returned as the error from StreamCompletion
	// instead of starting a channel.
	StreamErr error

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// --- Call records (read after test) ---

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// StreamCompletion records the call and returns a channel that emits the
// configured chunks. If StreamErr is set, it returns nil, StreamErr without
// opening a channel.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := p.chunksForCall(len(p.StreamCalls) - 1)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// chunksForCall resolves what the nth StreamCompletion call should emit.
// Caller holds p.mu.
func (p *Provider) chunksForCall(n int) []llm.Chunk {
	if len(p.StreamChunks) > 0 {
		out := make([]llm.Chunk, len(p.StreamChunks))
		copy(out, p.StreamChunks)
		return out
	}
	if len(p.Script) == 0 {
		return nil
	}
	if n >= len(p.Script) {
		n = len(p.Script) - 1
	}
	return splitChunks(p.Script[n])
}

// splitChunks cuts text into word-ish streaming chunks plus a final stop
// marker, preserving the original text when the pieces are concatenated.
func splitChunks(text string) []llm.Chunk {
	var out []llm.Chunk
	rest := text
	for len(rest) > 0 {
		i := strings.IndexByte(rest, ' ')
		if i < 0 {
			out = append(out, llm.Chunk{Text: rest})
			break
		}
		out = append(out, llm.Chunk{Text: rest[:i+1]})
		rest = rest[i+1:]
	}
	return append(out, llm.Chunk{FinishReason: "stop"})
}

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
