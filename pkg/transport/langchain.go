package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/killallgit/vidchat/pkg/logger"
	"github.com/killallgit/vidchat/pkg/stream"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// DefaultReplyNode tags tokens produced by a LangChainSource.
const DefaultReplyNode = "reflect"

// LangChainSource streams a reply straight from a language model. It emits
// the same model events the agent runtime does, so the aggregator treats
// both alike.
type LangChainSource struct {
	llm          llms.Model
	name         string
	node         string
	systemPrompt string
	log          *logger.Logger
}

type LangChainOption func(*LangChainSource)

// WithNode sets the node name attached to emitted events.
func WithNode(node string) LangChainOption {
	return func(s *LangChainSource) { s.node = node }
}

// WithModelName sets the name attached to emitted events.
func WithModelName(name string) LangChainOption {
	return func(s *LangChainSource) { s.name = name }
}

func WithSystemPrompt(prompt string) LangChainOption {
	return func(s *LangChainSource) { s.systemPrompt = prompt }
}

func NewLangChainSource(llm llms.Model, opts ...LangChainOption) *LangChainSource {
	s := &LangChainSource{
		llm:  llm,
		name: "ChatModel",
		node: DefaultReplyNode,
		log:  logger.WithComponent("langchain_source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOllamaSource creates a LangChainSource backed by an Ollama server.
// timeout bounds the wait for the reply to start, not the whole reply.
func NewOllamaSource(baseURL, model string, timeout time.Duration, opts ...LangChainOption) (*LangChainSource, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(NewStreamingClient(timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewLangChainSource(llm, append([]LangChainOption{WithModelName(model)}, opts...)...), nil
}

func (s *LangChainSource) Open(ctx context.Context, req Request) (<-chan stream.Fragment, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if s.systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Input))

	out := make(chan stream.Fragment, 16)
	go func() {
		defer close(out)
		snd := sender{ctx: ctx, out: out}

		if !snd.send(stream.Fragment{Event: s.event(stream.KindChatModelStart, "")}) {
			return
		}

		streamed := false
		streamingFunc := func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			if !snd.send(stream.Fragment{Event: s.event(stream.KindChatModelStream, string(chunk))}) {
				return ctx.Err()
			}
			return nil
		}

		resp, err := s.llm.GenerateContent(ctx, messages, llms.WithStreamingFunc(streamingFunc))
		if err != nil {
			s.log.Error("Model generation failed", "model", s.name, "error", err)
			snd.fail(fmt.Errorf("failed to generate content: %w", err))
			return
		}

		// Models that ignore the streaming func still return the content
		if !streamed && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			if !snd.send(stream.Fragment{Event: s.event(stream.KindChatModelStream, resp.Choices[0].Content)}) {
				return
			}
		}
		snd.send(stream.Fragment{Event: s.event(stream.KindChatModelEnd, "")})
	}()
	return out, nil
}

func (s *LangChainSource) event(kind stream.Kind, text string) stream.Event {
	return stream.Event{Kind: kind, Name: s.name, Node: s.node, Text: text}
}
