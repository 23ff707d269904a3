package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/killallgit/vidchat/pkg/logger"
	"github.com/killallgit/vidchat/pkg/stream"
	"golang.org/x/sync/errgroup"
)

// AgentSource streams a run of the video agent graph from a LangGraph
// compatible API. Opening a stream resolves an assistant and creates a
// thread, then reads the run's server-sent events.
type AgentSource struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewAgentSource(baseURL string, client *http.Client) *AgentSource {
	if client == nil {
		client = &http.Client{}
	}
	return &AgentSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     logger.WithComponent("agent_source"),
	}
}

type runRequest struct {
	AssistantID string      `json:"assistant_id"`
	Input       *AgentState `json:"input"`
	StreamMode  []string    `json:"stream_mode"`
	Config      struct {
		Configurable Configurable `json:"configurable"`
	} `json:"config"`
}

func (s *AgentSource) Open(ctx context.Context, req Request) (<-chan stream.Fragment, error) {
	var assistantID, threadID string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := s.searchAssistant(gctx)
		assistantID = id
		return err
	})
	g.Go(func() error {
		id, err := s.createThread(gctx)
		threadID = id
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug("Agent run resolved", "assistant_id", assistantID, "thread_id", threadID)

	input := req.State
	if input == nil {
		input = NewAgentState(req.Input, "")
	}
	run := runRequest{
		AssistantID: assistantID,
		Input:       input,
		StreamMode:  []string{stream.ChannelEvents},
	}
	run.Config.Configurable = req.Configurable

	resp, err := s.post(ctx, "/threads/"+threadID+"/runs/stream", run, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if err := checkStatus("runs/stream", resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	out := make(chan stream.Fragment, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		s.read(sender{ctx: ctx, out: out}, resp.Body, req)
	}()
	return out, nil
}

func (s *AgentSource) read(snd sender, body io.Reader, req Request) {
	reader := newSSEReader(body)
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.log.Error("Agent stream failed", "error", err)
			snd.fail(fmt.Errorf("failed to read agent stream: %w", err))
			return
		}

		switch ev.Type {
		case "end":
			return
		case "error":
			snd.fail(fmt.Errorf("agent run failed: %s", ev.Data))
			return
		case "metadata", "":
			continue
		}

		decoded, err := stream.DecodeAgentEvent(ev.Type, []byte(ev.Data))
		if err != nil {
			s.log.Debug("Skipping undecodable event", "channel", ev.Type, "error", err)
			continue
		}
		if decoded.Kind == stream.KindUnknown || !req.Allows(decoded) {
			continue
		}
		if !snd.send(stream.Fragment{Event: decoded}) {
			return
		}
	}
}

func (s *AgentSource) searchAssistant(ctx context.Context) (string, error) {
	resp, err := s.post(ctx, "/assistants/search", map[string]any{"limit": 1}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus("assistants/search", resp); err != nil {
		return "", err
	}

	var assistants []struct {
		AssistantID string `json:"assistant_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&assistants); err != nil {
		return "", fmt.Errorf("failed to decode assistants: %w", err)
	}
	if len(assistants) == 0 || assistants[0].AssistantID == "" {
		return "", ErrNoAssistant
	}
	return assistants[0].AssistantID, nil
}

func (s *AgentSource) createThread(ctx context.Context) (string, error) {
	resp, err := s.post(ctx, "/threads", map[string]any{}, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus("threads", resp); err != nil {
		return "", err
	}

	var thread struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&thread); err != nil {
		return "", fmt.Errorf("failed to decode thread: %w", err)
	}
	if thread.ThreadID == "" {
		return "", fmt.Errorf("failed to create thread: empty thread id")
	}
	return thread.ThreadID, nil
}

func (s *AgentSource) post(ctx context.Context, path string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	return resp, nil
}

// Allows reports whether ev passes the request's include filters. Model
// events pass on the "chat_model" type, tool events on the "tool" type, and
// any event passes when its name is listed.
func (r Request) Allows(ev stream.Event) bool {
	if len(r.IncludeNames) == 0 && len(r.IncludeTypes) == 0 {
		return true
	}
	if slices.Contains(r.IncludeNames, ev.Name) {
		return true
	}
	switch ev.Kind {
	case stream.KindChatModelStart, stream.KindChatModelStream, stream.KindChatModelEnd:
		return slices.Contains(r.IncludeTypes, "chat_model")
	case stream.KindToolStart, stream.KindToolEnd:
		return slices.Contains(r.IncludeTypes, "tool")
	}
	return false
}
