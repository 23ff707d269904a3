// Package testutil holds fakes shared by the package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// FakeLLM implements llms.Model. Each call answers with the next scripted
// reply, streamed chunk by chunk through the streaming func when one is set.
type FakeLLM struct {
	mu           sync.Mutex
	replies      [][]string
	currentIndex int
	callCount    int
	lastPrompt   string
	errorOnCall  int // If > 0, return error on this call number
	errorMessage string
	ignoreStream bool
}

// NewFakeLLM creates a fake whose replies are streamed as single chunks.
func NewFakeLLM(responses ...string) *FakeLLM {
	f := &FakeLLM{}
	for _, r := range responses {
		f.replies = append(f.replies, []string{r})
	}
	return f
}

// NewStreamingFakeLLM creates a fake that streams chunks as one reply.
func NewStreamingFakeLLM(chunks ...string) *FakeLLM {
	return &FakeLLM{replies: [][]string{chunks}}
}

// Call implements llms.Model
func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// GenerateContent implements llms.Model
func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var parts []string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				parts = append(parts, text.Text)
			}
		}
	}

	chunks, err := f.next(strings.Join(parts, "\n"))
	if err != nil {
		return nil, err
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.StreamingFunc != nil && !f.ignoresStream() {
		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: strings.Join(chunks, "")}},
	}, nil
}

func (f *FakeLLM) next(prompt string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCount++
	f.lastPrompt = prompt

	if f.errorOnCall > 0 && f.callCount == f.errorOnCall {
		if f.errorMessage != "" {
			return nil, errors.New(f.errorMessage)
		}
		return nil, fmt.Errorf("fake error on call %d", f.callCount)
	}
	if len(f.replies) == 0 {
		return nil, fmt.Errorf("no responses configured")
	}

	reply := f.replies[f.currentIndex]
	f.currentIndex = (f.currentIndex + 1) % len(f.replies)
	return reply, nil
}

// SetErrorOnCall configures the LLM to return an error on a specific call
func (f *FakeLLM) SetErrorOnCall(callNumber int, errorMessage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorOnCall = callNumber
	f.errorMessage = errorMessage
}

// IgnoreStreaming makes the fake answer without calling the streaming func,
// like models that only return complete responses.
func (f *FakeLLM) IgnoreStreaming() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignoreStream = true
}

func (f *FakeLLM) ignoresStream() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ignoreStream
}

// GetCallCount returns the number of generations
func (f *FakeLLM) GetCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

// GetLastPrompt returns the text of the last prompt
func (f *FakeLLM) GetLastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

var _ llms.Model = (*FakeLLM)(nil)
