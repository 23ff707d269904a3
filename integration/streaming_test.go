package integration

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/config"
	"github.com/killallgit/vidchat/pkg/session"
	"github.com/killallgit/vidchat/pkg/stream"
	"github.com/killallgit/vidchat/pkg/transport"
)

var _ = Describe("Streaming Integration Tests", func() {
	var agentCfg config.AgentConfig

	BeforeEach(func() {
		skipUnlessEnabled()

		agentCfg = config.AgentConfig{
			IndexID:      envOr("INDEX_ID", ""),
			Version:      "v1",
			IncludeTypes: []string{"chat_model"},
			IncludeNames: []string{"video-search"},
			ReplyNodes:   []string{"reflect"},
		}
	})

	newSession := func(src transport.Source) *session.Session {
		return session.New(session.Options{
			Source:      src,
			Builder:     transport.NewRequestBuilder(agentCfg),
			IdleTimeout: 2 * time.Minute,
			Welcome:     "Welcome!",
			Aggregator:  stream.DefaultOptions(),
		})
	}

	expectFinished := func(state chat.ConversationState) {
		Expect(state.Loading).To(BeFalse())
		Expect(state.StatusMessages).To(BeEmpty())
		_, _, streaming := state.StreamingMessage()
		Expect(streaming).To(BeFalse())
	}

	It("should stream a reply from Ollama", func() {
		src, err := transport.NewOllamaSource(
			envOr("OLLAMA_HOST", "http://localhost:11434"),
			envOr("OLLAMA_DEFAULT_MODEL", "qwen3:latest"),
			time.Minute,
		)
		Expect(err).NotTo(HaveOccurred())

		s := newSession(src)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		Expect(s.Submit(ctx, "Reply with one short sentence about football.")).To(Succeed())

		state := s.State()
		if state.RunStatus == chat.RunError {
			Skip("Ollama not available: " + state.ErrorMessage)
		}
		expectFinished(state)
		last, _ := state.LastMessage()
		Expect(last.IsAI()).To(BeTrue())
		Expect(last.Text).NotTo(BeEmpty())
	})

	It("should run a search through the agent runtime", func() {
		if agentCfg.IndexID == "" {
			Skip("INDEX_ID not set")
		}
		src := transport.NewAgentSource(envOr("LANGGRAPH_API_URL", "http://localhost:2024"), http.DefaultClient)
		s := newSession(src)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		Expect(s.Submit(ctx, "find a touchdown")).To(Succeed())

		state := s.State()
		if state.RunStatus == chat.RunError {
			Skip("agent runtime not available: " + state.ErrorMessage)
		}
		expectFinished(state)
		Expect(state.Messages[0].IsUser()).To(BeTrue())
		for _, clip := range state.Clips() {
			Expect(clip.Valid()).To(BeTrue())
		}
	})

	It("should stream raw text through the proxy", func() {
		src := transport.NewTextSource(envOr("PROXY_URL", "http://localhost:5000"), http.DefaultClient)
		s := newSession(src)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		Expect(s.Submit(ctx, "find a touchdown")).To(Succeed())

		state := s.State()
		if state.RunStatus == chat.RunError {
			Skip("proxy not available: " + state.ErrorMessage)
		}
		expectFinished(state)
		Expect(state.RunStatus).To(Equal(chat.RunSuccess))
	})
})
