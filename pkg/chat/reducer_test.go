package chat_test

import (
	"github.com/killallgit/vidchat/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func streamingCount(state chat.ConversationState) int {
	n := 0
	for _, msg := range state.Messages {
		if msg.IsStreaming {
			n++
		}
	}
	return n
}

var _ = Describe("Apply", func() {
	var state chat.ConversationState

	BeforeEach(func() {
		state = chat.NewConversationState("Welcome")
	})

	Describe("AppendMessages", func() {
		It("should append in order without touching the input", func() {
			next := chat.Apply(state, chat.AppendMessages{Messages: []chat.Message{
				chat.NewUserMessage("one"),
				chat.NewUserMessage("two"),
			}})

			Expect(next.Messages).To(HaveLen(3))
			Expect(next.Messages[2].Text).To(Equal("two"))
			Expect(state.Messages).To(HaveLen(1))
		})
	})

	Describe("ReplaceMessageAt", func() {
		BeforeEach(func() {
			state = chat.ApplyAll(state, chat.AppendMessages{Messages: []chat.Message{
				chat.NewUserMessage("q"),
				chat.NewAIMessage("q"),
			}})
		})

		It("should replace the message at the index", func() {
			replacement := chat.NewAIMessage("q")
			replacement.Text = "answer"

			next := chat.Apply(state, chat.ReplaceMessageAt{Index: 2, Message: replacement})
			Expect(next.Messages[2].Text).To(Equal("answer"))
			Expect(state.Messages[2].Text).To(BeEmpty())
		})

		It("should ignore out of range indexes", func() {
			Expect(chat.Apply(state, chat.ReplaceMessageAt{Index: 3})).To(Equal(state))
			Expect(chat.Apply(state, chat.ReplaceMessageAt{Index: -1})).To(Equal(state))
		})

		It("should never rewrite a user turn", func() {
			next := chat.Apply(state, chat.ReplaceMessageAt{Index: 1, Message: chat.NewAIMessage("x")})
			Expect(next).To(Equal(state))
		})
	})

	Describe("AppendToken", func() {
		It("should lazily create the ai turn on the first token", func() {
			state = chat.Apply(state, chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage("q")}})
			next := chat.Apply(state, chat.AppendToken{Token: "Hel", Question: "q"})

			Expect(next.Messages).To(HaveLen(3))
			last, _ := next.LastMessage()
			Expect(last.IsAI()).To(BeTrue())
			Expect(last.Text).To(Equal("Hel"))
			Expect(last.Question).To(Equal("q"))
			Expect(last.TokenSequence).To(Equal(1))
		})

		It("should append to the pending ai turn", func() {
			next := chat.ApplyAll(state,
				chat.AppendToken{Token: "Hel"},
				chat.AppendToken{Token: "lo"},
			)

			last, _ := next.LastMessage()
			Expect(last.Text).To(Equal("Hello"))
			Expect(last.TokenSequence).To(Equal(2))
		})

		It("should drop back-to-back duplicate tokens", func() {
			withDupes := chat.ApplyAll(state,
				chat.AppendToken{Token: "a"},
				chat.AppendToken{Token: "a"},
				chat.AppendToken{Token: "b"},
				chat.AppendToken{Token: "b"},
				chat.AppendToken{Token: "a"},
			)
			deduped := chat.ApplyAll(state,
				chat.AppendToken{Token: "a"},
				chat.AppendToken{Token: "b"},
				chat.AppendToken{Token: "a"},
			)

			last, _ := withDupes.LastMessage()
			Expect(last.Text).To(Equal("aba"))
			want, _ := deduped.LastMessage()
			Expect(last.Text).To(Equal(want.Text))
			Expect(last.TokenSequence).To(Equal(want.TokenSequence))
		})

		It("should ignore empty tokens", func() {
			Expect(chat.Apply(state, chat.AppendToken{})).To(Equal(state))
		})
	})

	Describe("SetStreamingFlag", func() {
		It("should only flag a trailing ai turn", func() {
			Expect(chat.Apply(state, chat.SetStreamingFlag{Streaming: true})).To(Equal(state))

			next := chat.ApplyAll(state,
				chat.AppendToken{Token: "x"},
				chat.SetStreamingFlag{Streaming: true},
			)
			_, msg, ok := next.StreamingMessage()
			Expect(ok).To(BeTrue())
			Expect(msg.Text).To(Equal("x"))
		})

		It("should keep at most one streaming message at the tail", func() {
			sequences := [][]chat.Command{
				{
					chat.AppendToken{Token: "x"},
					chat.SetStreamingFlag{Streaming: true},
					chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage("next")}},
				},
				{
					chat.AppendToken{Token: "x"},
					chat.SetStreamingFlag{Streaming: true},
					chat.AppendMessages{Messages: []chat.Message{chat.NewAIMessage("q")}},
					chat.SetStreamingFlag{Streaming: true},
				},
				{
					chat.AppendMessages{Messages: []chat.Message{{Sender: chat.SenderAI, IsStreaming: true}, {Sender: chat.SenderAI, IsStreaming: true}}},
				},
				{
					chat.AppendMessages{Messages: []chat.Message{{Sender: chat.SenderUser, IsStreaming: true}}},
				},
				{
					chat.AppendToken{Token: "x"},
					chat.SetStreamingFlag{Streaming: true},
					chat.ReplaceMessageAt{Index: 0, Message: chat.Message{Sender: chat.SenderAI, IsStreaming: true}},
				},
			}

			for _, cmds := range sequences {
				next := chat.ApplyAll(state, cmds...)
				Expect(streamingCount(next)).To(BeNumerically("<=", 1))
				if idx, msg, ok := next.StreamingMessage(); ok {
					Expect(idx).To(Equal(next.LastIndex()))
					Expect(msg.IsAI()).To(BeTrue())
				}
			}
		})
	})

	Describe("SetStatusMessages", func() {
		It("should append and clear", func() {
			next := chat.ApplyAll(state,
				chat.AppendStatus("Running => video-search"),
				chat.AppendStatus("Running => combine-clips"),
			)
			Expect(next.StatusMessages).To(HaveLen(2))

			next = chat.Apply(next, chat.ClearStatus())
			Expect(next.StatusMessages).To(BeEmpty())
			Expect(next.StatusMessages).NotTo(BeNil())

			next = chat.Apply(next, chat.AppendStatus("Running => download-video"))
			Expect(next.StatusMessages).To(Equal([]string{"Running => download-video"}))
		})
	})

	Describe("AttachToolsDataToLastMessage", func() {
		It("should attach to the most recent message", func() {
			clips := []chat.ClipResult{sampleClip("1")}
			next := chat.ApplyAll(state,
				chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage("q"), chat.NewAIMessage("q")}},
				chat.AttachToolsDataToLastMessage{Clips: clips},
			)

			last, _ := next.LastMessage()
			Expect(last.ToolsData).To(Equal(clips))
			Expect(next.Messages[1].ToolsData).To(BeEmpty())
		})

		It("should be a no-op with no messages", func() {
			empty := chat.NewConversationState("")
			next := chat.Apply(empty, chat.AttachToolsDataToLastMessage{Clips: []chat.ClipResult{sampleClip("1")}})
			Expect(next).To(Equal(empty))
		})
	})

	Describe("RemoveInitialMessage", func() {
		It("should remove a leading welcome turn only", func() {
			next := chat.Apply(state, chat.RemoveInitialMessage{})
			Expect(next.Messages).To(BeEmpty())

			again := chat.Apply(next, chat.RemoveInitialMessage{})
			Expect(again).To(Equal(next))
		})
	})

	Describe("ClearAllMessages and ResetToInitial", func() {
		It("should clear the transcript", func() {
			next := chat.ApplyAll(state,
				chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage("q")}},
				chat.ClearAllMessages{},
			)
			Expect(next.Messages).To(BeEmpty())
		})

		It("should reset to the single welcome turn", func() {
			next := chat.ApplyAll(state,
				chat.RemoveInitialMessage{},
				chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage("q")}},
				chat.AppendStatus("Running => video-search"),
				chat.SetErrorMessage{Text: "boom"},
				chat.SetLoading{Loading: true},
				chat.ResetToInitial{Initial: chat.NewInitialMessage("Welcome")},
			)

			Expect(next.Messages).To(HaveLen(1))
			Expect(next.HasInitialMessage()).To(BeTrue())
			Expect(next.StatusMessages).To(BeEmpty())
			Expect(next.ErrorMessage).To(BeEmpty())
			Expect(next.Loading).To(BeFalse())
		})
	})

	Describe("UpdateLastUserMessage", func() {
		It("should record the search query on the latest user turn", func() {
			next := chat.ApplyAll(state,
				chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage("first"), chat.NewUserMessage("second")}},
				chat.AppendToken{Token: "x"},
				chat.UpdateLastUserMessage{SearchQuery: "touchdown"},
			)

			Expect(next.Messages[2].SearchQuery).To(Equal("touchdown"))
			Expect(next.Messages[1].SearchQuery).To(BeEmpty())
		})

		It("should be a no-op without user turns", func() {
			Expect(chat.Apply(state, chat.UpdateLastUserMessage{SearchQuery: "x"})).To(Equal(state))
		})
	})

	Describe("flags", func() {
		It("should set loading, error, modal and run status", func() {
			modal := chat.ModalState{Show: true, Type: chat.ModalPanel, MessageIndex: 2, ClipIndex: 1}
			next := chat.ApplyAll(state,
				chat.SetLoading{Loading: true},
				chat.SetErrorMessage{Text: "oops"},
				chat.SetModal{Modal: modal},
				chat.SetRunStatus{Status: chat.RunRunning},
			)

			Expect(next.Loading).To(BeTrue())
			Expect(next.ErrorMessage).To(Equal("oops"))
			Expect(next.Modal).To(Equal(modal))
			Expect(next.RunStatus).To(Equal(chat.RunRunning))
		})
	})

	It("should never panic for any command on an empty state", func() {
		empty := chat.ConversationState{}
		cmds := []chat.Command{
			chat.AppendMessages{}, chat.ReplaceMessageAt{Index: 5}, chat.AppendToken{Token: "x"},
			chat.SetStreamingFlag{Streaming: true}, chat.SetLoading{}, chat.ClearStatus(),
			chat.AttachToolsDataToLastMessage{}, chat.RemoveInitialMessage{}, chat.ClearAllMessages{},
			chat.ResetToInitial{}, chat.SetErrorMessage{}, chat.UpdateLastUserMessage{},
			chat.SetModal{}, chat.SetRunStatus{},
		}
		for _, cmd := range cmds {
			Expect(func() { chat.Apply(empty, cmd) }).NotTo(Panic(), cmd.String())
		}
	})
})
