// Package transport opens streams against the assistant backends and
// delivers their increments as stream fragments.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/config"
	"github.com/killallgit/vidchat/pkg/stream"
)

// Source opens one stream per request. The returned channel delivers
// fragments in order and is closed when the stream ends; a fragment with a
// non-nil Err is always the last one. Cancelling ctx stops delivery.
type Source interface {
	Open(ctx context.Context, req Request) (<-chan stream.Fragment, error)
}

// ErrNoAssistant is returned when the agent runtime has no assistant to run.
var ErrNoAssistant = errors.New("no assistant available")

// StatusError reports a non-2xx response from a backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Request is the payload that opens a stream.
type Request struct {
	Input        string       `json:"input"`
	Configurable Configurable `json:"configurable"`
	Version      string       `json:"version"`
	IncludeTypes []string     `json:"include_types"`
	IncludeNames []string     `json:"include_names"`

	// State is the explicit graph input sent by the agent source.
	State *AgentState `json:"-"`
}

type Configurable struct {
	SessionID int64 `json:"session_id"`
}

// AgentState is the input state of the video agent graph.
type AgentState struct {
	ChatHistory      []HistoryEntry               `json:"chat_history"`
	MadePlan         bool                         `json:"made_plan"`
	NextWorker       *string                      `json:"next_worker"`
	ActivePlan       *string                      `json:"active_plan"`
	ClipsFromSearch  map[string][]chat.ClipResult `json:"clips_from_search"`
	RelevantClipKeys []string                     `json:"relevant_clip_keys"`
	ToolCall         *string                      `json:"tool_call"`
	IndexID          *string                      `json:"index_id"`
}

type HistoryEntry struct {
	Role    string `json:"role"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// NewAgentState builds the initial graph state for input. The index id is
// named in the first human message, which is how the graph learns which
// index to search.
func NewAgentState(input, indexID string) *AgentState {
	content := input
	if indexID != "" {
		content = fmt.Sprintf("%s in the index %s", input, indexID)
	}
	return &AgentState{
		ChatHistory:      []HistoryEntry{{Role: "human", Name: "user", Content: content}},
		ClipsFromSearch:  map[string][]chat.ClipResult{},
		RelevantClipKeys: []string{},
	}
}

// RequestBuilder derives stream requests from configuration.
type RequestBuilder struct {
	Version      string
	IncludeTypes []string
	IncludeNames []string
	IndexID      string
}

func NewRequestBuilder(cfg config.AgentConfig) RequestBuilder {
	return RequestBuilder{
		Version:      cfg.Version,
		IncludeTypes: cfg.IncludeTypes,
		IncludeNames: cfg.IncludeNames,
		IndexID:      cfg.IndexID,
	}
}

func (b RequestBuilder) Build(input string, sessionID int64) Request {
	return Request{
		Input:        input,
		Configurable: Configurable{SessionID: sessionID},
		Version:      b.Version,
		IncludeTypes: b.IncludeTypes,
		IncludeNames: b.IncludeNames,
		State:        NewAgentState(input, b.IndexID),
	}
}

// sender delivers fragments until ctx is done.
type sender struct {
	ctx context.Context
	out chan<- stream.Fragment
}

func (s sender) send(f stream.Fragment) bool {
	select {
	case s.out <- f:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// fail delivers err unless the stream was cancelled, in which case the
// channel is simply closed.
func (s sender) fail(err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.send(stream.Fragment{Err: err})
}

// NewStreamingClient returns an HTTP client that bounds connecting and
// waiting for response headers by timeout but lets a streamed body run as
// long as it keeps delivering. Idle bodies are policed by the session.
func NewStreamingClient(timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		tr.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		tr.TLSHandshakeTimeout = timeout
		tr.ResponseHeaderTimeout = timeout
	}
	return &http.Client{Transport: tr}
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
