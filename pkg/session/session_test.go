package session_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/session"
	"github.com/killallgit/vidchat/pkg/stream"
	"github.com/killallgit/vidchat/pkg/testutil"
	"github.com/killallgit/vidchat/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const clipJSON = `[{"score":91,"start":63,"end":71.5,"video_id":"65f1a2","video_title":"Week 3 highlights","clip_id":"clip-1"}]`

var _ = Describe("Session", func() {
	var (
		ctx     context.Context
		builder transport.RequestBuilder
	)

	BeforeEach(func() {
		ctx = context.Background()
		builder = transport.RequestBuilder{IndexID: "idx-1"}
	})

	newSession := func(src transport.Source, idle time.Duration) *session.Session {
		return session.New(session.Options{
			Source:      src,
			Builder:     builder,
			IdleTimeout: idle,
			Welcome:     "Welcome!",
			Aggregator:  stream.DefaultOptions(),
		})
	}

	It("should start from the welcome message", func() {
		s := newSession(testutil.NewFakeSource(), 0)
		state := s.State()
		Expect(state.HasInitialMessage()).To(BeTrue())
		Expect(state.Messages[0].Text).To(Equal("Welcome!"))
		Expect(s.ID()).NotTo(BeEmpty())
	})

	It("should stream a text reply with clips", func() {
		src := testutil.NewFakeSource(testutil.Texts(
			"Running => video-search\n",
			"Here is ",
			"a clip ",
			clipJSON,
		))
		s := newSession(src, time.Second)

		Expect(s.Submit(ctx, "find a touchdown clip")).To(Succeed())

		state := s.State()
		Expect(state.Messages).To(HaveLen(2))
		ai := state.Messages[1]
		Expect(ai.Text).To(Equal("Here is a clip "))
		Expect(ai.ToolsData).To(HaveLen(1))
		Expect(ai.ToolsData[0].ClipID).To(Equal("clip-1"))
		Expect(state.Loading).To(BeFalse())
		Expect(state.StatusMessages).To(BeEmpty())
		Expect(state.RunStatus).To(Equal(chat.RunSuccess))
	})

	It("should send the question with a stable session id", func() {
		src := testutil.NewFakeSource(testutil.Texts("ok"))
		s := newSession(src, 0)

		Expect(s.Submit(ctx, "  first  ")).To(Succeed())
		Expect(s.Submit(ctx, "second")).To(Succeed())

		reqs := src.Requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[0].Input).To(Equal("first"))
		Expect(reqs[0].State.ChatHistory[0].Content).To(Equal("first in the index idx-1"))
		Expect(reqs[1].Configurable.SessionID).To(Equal(reqs[0].Configurable.SessionID))
	})

	It("should reject a blank question without opening a stream", func() {
		src := testutil.NewFakeSource()
		s := newSession(src, 0)

		Expect(s.Submit(ctx, " ")).To(MatchError(stream.ErrEmptyQuestion))
		Expect(src.Requests()).To(BeEmpty())
		Expect(s.State().HasInitialMessage()).To(BeTrue())
	})

	It("should surface a failed open as a stream error", func() {
		src := testutil.NewFakeSource()
		src.OpenErr = errors.New("dial tcp: connection refused")
		s := newSession(src, 0)

		Expect(s.Submit(ctx, "find a touchdown clip")).To(Succeed())

		state := s.State()
		Expect(state.Messages).To(HaveLen(1))
		Expect(state.Loading).To(BeFalse())
		Expect(state.ErrorMessage).To(Equal(stream.MessageStreamError))
		Expect(state.RunStatus).To(Equal(chat.RunError))
	})

	It("should keep partial text when the stream fails", func() {
		script := append(testutil.Texts("Here is "),
			stream.Fragment{Err: errors.New("Caught torch.cuda.CudaError: out of memory")})
		s := newSession(testutil.NewFakeSource(script), 0)

		Expect(s.Submit(ctx, "q")).To(Succeed())

		state := s.State()
		last, _ := state.LastMessage()
		Expect(last.Text).To(Equal("Here is "))
		Expect(state.ErrorMessage).To(Equal(stream.MessageServiceOverload))
	})

	It("should time out an idle stream", func() {
		src := testutil.NewFakeSource(testutil.Texts("Here is "))
		src.Hold = true
		s := newSession(src, 50*time.Millisecond)

		Expect(s.Submit(ctx, "q")).To(Succeed())

		state := s.State()
		last, _ := state.LastMessage()
		Expect(last.Text).To(Equal("Here is "))
		Expect(state.Loading).To(BeFalse())
		Expect(state.ErrorMessage).To(Equal(stream.MessageTimeout))
		Expect(state.RunStatus).To(Equal(chat.RunTimeout))
	})

	It("should time out a handshake that never completes", func() {
		var opened atomic.Int32
		src := sourceFunc(func(ctx context.Context, req transport.Request) (<-chan stream.Fragment, error) {
			opened.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		s := newSession(src, 50*time.Millisecond)

		done, err := s.Start(ctx, "q")
		Expect(err).NotTo(HaveOccurred())
		Eventually(done, "1s").Should(BeClosed())

		state := s.State()
		Expect(opened.Load()).To(BeEquivalentTo(1))
		Expect(state.Messages).To(HaveLen(1))
		Expect(state.Loading).To(BeFalse())
		Expect(state.ErrorMessage).To(Equal(stream.MessageTimeout))
		Expect(state.RunStatus).To(Equal(chat.RunTimeout))
	})

	It("should drop fragments after cancel", func() {
		src := testutil.NewFakeSource(testutil.Texts("Here is ", "late"))
		src.Step = make(chan struct{})
		s := newSession(src, 0)

		_, err := s.Start(ctx, "q")
		Expect(err).NotTo(HaveOccurred())
		src.Step <- struct{}{}
		Eventually(func() string {
			last, _ := s.State().LastMessage()
			return last.Text
		}).Should(Equal("Here is "))

		var dispatched atomic.Int32
		s.Cancel()
		unsubscribe := s.Store().Subscribe(func(chat.ConversationState) { dispatched.Add(1) })
		defer unsubscribe()

		select {
		case src.Step <- struct{}{}:
		case <-time.After(50 * time.Millisecond):
		}
		s.Wait()

		state := s.State()
		last, _ := state.LastMessage()
		Expect(last.Text).To(Equal("Here is "))
		Expect(state.Loading).To(BeFalse())
		Expect(state.RunStatus).To(Equal(chat.RunInterrupted))
		Consistently(dispatched.Load, 50*time.Millisecond).Should(BeZero())
	})

	It("should cancel the running stream on a new question", func() {
		var opens atomic.Int32
		src := sourceFunc(func(ctx context.Context, req transport.Request) (<-chan stream.Fragment, error) {
			out := make(chan stream.Fragment, 1)
			if opens.Add(1) == 1 {
				go func() {
					<-ctx.Done()
					out <- stream.Fragment{Event: stream.TextEvent("stale")}
					close(out)
				}()
				return out, nil
			}
			out <- stream.Fragment{Event: stream.TextEvent("fresh")}
			close(out)
			return out, nil
		})
		s := newSession(src, 0)

		first, err := s.Start(ctx, "one")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Submit(ctx, "two")).To(Succeed())
		Eventually(first).Should(BeClosed())

		state := s.State()
		Expect(state.Messages).To(HaveLen(3))
		Expect(state.Messages[0].Question).To(Equal("one"))
		Expect(state.Messages[1].Question).To(Equal("two"))
		Expect(state.Messages[2].Text).To(Equal("fresh"))
		Expect(state.RunStatus).To(Equal(chat.RunSuccess))
	})

	It("should reset to the welcome message on clear", func() {
		src := testutil.NewFakeSource(testutil.Texts("Here is "))
		src.Hold = true
		s := newSession(src, 0)

		_, err := s.Start(ctx, "q")
		Expect(err).NotTo(HaveOccurred())
		s.ClearChat()
		s.Wait()

		state := s.State()
		Expect(state.Messages).To(HaveLen(1))
		Expect(state.HasInitialMessage()).To(BeTrue())
		Expect(state.Loading).To(BeFalse())
		Expect(state.ErrorMessage).To(BeEmpty())
	})

	It("should stream tokens from a language model", func() {
		llm := testutil.NewStreamingFakeLLM("Here ", "you ", "go")
		s := newSession(transport.NewLangChainSource(llm), time.Second)

		Expect(s.Submit(ctx, "hello")).To(Succeed())

		state := s.State()
		last, _ := state.LastMessage()
		Expect(last.IsAI()).To(BeTrue())
		Expect(last.Text).To(Equal("Here you go"))
		Expect(last.IsStreaming).To(BeFalse())
		Expect(state.RunStatus).To(Equal(chat.RunSuccess))
		Expect(llm.GetLastPrompt()).To(ContainSubstring("hello"))
	})
})
