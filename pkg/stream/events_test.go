package stream_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DecodeAgentEvent", func() {
	It("should decode a model token with its node", func() {
		ev, err := stream.DecodeAgentEvent("events", []byte(`{
			"event": "on_chat_model_stream",
			"name": "AzureChatOpenAI",
			"metadata": {"langgraph_node": "reflect"},
			"data": {"chunk": {"content": "Here is "}}
		}`))

		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(stream.KindChatModelStream))
		Expect(ev.Name).To(Equal("AzureChatOpenAI"))
		Expect(ev.Node).To(Equal("reflect"))
		Expect(ev.Text).To(Equal("Here is "))
	})

	It("should join text parts of a structured chunk", func() {
		ev, err := stream.DecodeAgentEvent("events", []byte(`{
			"event": "on_chat_model_stream",
			"data": {"chunk": {"content": [{"type": "text", "text": "a"}, {"type": "tool_use"}, {"type": "text", "text": "b"}]}}
		}`))

		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Text).To(Equal("ab"))
	})

	It("should decode tool start input", func() {
		ev, err := stream.DecodeAgentEvent("events", []byte(`{
			"event": "on_tool_start",
			"name": "video-search",
			"data": {"input": {"query": "touchdown"}}
		}`))

		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(stream.KindToolStart))
		Expect(stream.ToolQuery(ev.Input)).To(Equal("touchdown"))
	})

	It("should unwrap tool output in its different shapes", func() {
		clips := mustJSON([]chat.ClipResult{touchdownClip()})
		shapes := []string{
			mustJSON(clips),
			fmt.Sprintf(`{"content": %s, "type": "tool"}`, mustJSON(clips)),
			clips,
		}
		for _, output := range shapes {
			ev, err := stream.DecodeAgentEvent("events", []byte(fmt.Sprintf(
				`{"event": "on_tool_end", "name": "video-search", "data": {"output": %s}}`, output)))

			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(stream.KindToolEnd))
			parsed, ok := stream.ParseClips(ev.Output)
			Expect(ok).To(BeTrue(), output)
			Expect(parsed).To(HaveLen(1))
		}
	})

	It("should ignore other channels and unknown kinds", func() {
		ev, err := stream.DecodeAgentEvent("updates", []byte(`not even json`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(stream.KindUnknown))
		Expect(ev.Channel).To(Equal("updates"))

		ev, err = stream.DecodeAgentEvent("events", []byte(`{"event": "on_retriever_start"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Kind).To(Equal(stream.KindUnknown))
	})

	It("should fail on malformed event data", func() {
		_, err := stream.DecodeAgentEvent("events", []byte(`{"event":`))
		Expect(err).To(HaveOccurred())
	})

	It("should round trip kind names", func() {
		for _, k := range []stream.Kind{
			stream.KindToolStart, stream.KindToolEnd, stream.KindChatModelStart,
			stream.KindChatModelStream, stream.KindChatModelEnd,
		} {
			Expect(stream.ParseKind(k.String())).To(Equal(k))
		}
	})
})

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ = Describe("Error mapping", func() {
	DescribeTable("ClassifyError",
		func(err error, class stream.ErrorClass, retryable bool, message string) {
			se := stream.ClassifyError(err)
			Expect(se.Class).To(Equal(class))
			Expect(se.Retryable).To(Equal(retryable))
			Expect(errors.Is(se, err)).To(BeTrue())
			Expect(stream.UserMessage(err)).To(Equal(message))
		},
		Entry("idle timeout", stream.ErrStreamTimeout, stream.ClassTimeout, true, stream.MessageTimeout),
		Entry("deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), stream.ClassTimeout, true, stream.MessageTimeout),
		Entry("network timeout", timeoutErr{}, stream.ClassTimeout, true, stream.MessageTimeout),
		Entry("value error", errors.New("500: Caught Value Error in model"), stream.ClassService, true, stream.MessageServiceOverload),
		Entry("cuda error", errors.New("Caught torch.cuda.CudaError"), stream.ClassService, true, stream.MessageServiceOverload),
		Entry("unknown error", errors.New("Caught Unknown Error"), stream.ClassService, true, stream.MessageServiceOverload),
		Entry("connection refused", errors.New("dial tcp: connection refused"), stream.ClassTransport, false, stream.MessageStreamError),
	)

	It("should keep an already classified error", func() {
		se := &stream.StreamError{Class: stream.ClassService, Err: errors.New("x")}
		Expect(stream.ClassifyError(fmt.Errorf("wrapped: %w", se))).To(BeIdenticalTo(se))
	})

	It("should map nil to nothing", func() {
		Expect(stream.ClassifyError(nil)).To(BeNil())
		Expect(stream.UserMessage(nil)).To(BeEmpty())
	})
})
