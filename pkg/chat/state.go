package chat

import "slices"

// ModalType selects which overlay the UI shows.
type ModalType string

const (
	ModalMessages  ModalType = "messages"
	ModalPanel     ModalType = "panel"
	ModalClearChat ModalType = "clear_chat"
)

// RunStatus mirrors the lifecycle of the agent run backing the current turn.
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunRunning     RunStatus = "running"
	RunError       RunStatus = "error"
	RunSuccess     RunStatus = "success"
	RunTimeout     RunStatus = "timeout"
	RunInterrupted RunStatus = "interrupted"
)

// ModalState holds the modal selection flags.
type ModalState struct {
	Show         bool      `json:"show"`
	Type         ModalType `json:"type"`
	MessageIndex int       `json:"message_index"`
	ClipIndex    int       `json:"clip_index"`
}

// ConversationState is the root aggregate every render surface reads from.
// Values are treated as immutable: Apply always returns fresh slices.
type ConversationState struct {
	Messages       []Message  `json:"array_messages"`
	Loading        bool       `json:"loading"`
	StatusMessages []string   `json:"status_messages"`
	ErrorMessage   string     `json:"error_message"`
	Modal          ModalState `json:"modal"`
	RunStatus      RunStatus  `json:"run_status"`
}

// NewConversationState creates the state for a fresh session, seeded with
// the welcome turn when one is given.
func NewConversationState(welcome string) ConversationState {
	state := ConversationState{
		Messages:       make([]Message, 0, 1),
		StatusMessages: make([]string, 0),
		Modal:          ModalState{Type: ModalMessages},
		RunStatus:      RunPending,
	}
	if welcome != "" {
		state.Messages = append(state.Messages, NewInitialMessage(welcome))
	}
	return state
}

func (s ConversationState) MessageCount() int {
	return len(s.Messages)
}

func (s ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s ConversationState) LastIndex() int {
	return len(s.Messages) - 1
}

// StreamingMessage returns the message currently receiving tokens, if any.
func (s ConversationState) StreamingMessage() (int, Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].IsStreaming {
			return i, s.Messages[i], true
		}
	}
	return -1, Message{}, false
}

func (s ConversationState) LastUserIndex() int {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].IsUser() {
			return i
		}
	}
	return -1
}

func (s ConversationState) HasInitialMessage() bool {
	return len(s.Messages) > 0 && s.Messages[0].IsInitial()
}

// Clips returns every clip attached to the transcript, in order.
func (s ConversationState) Clips() []ClipResult {
	var clips []ClipResult
	for _, msg := range s.Messages {
		clips = append(clips, msg.ToolsData...)
	}
	return clips
}

func (s ConversationState) clone() ConversationState {
	next := s
	next.Messages = make([]Message, len(s.Messages))
	copy(next.Messages, s.Messages)
	next.StatusMessages = make([]string, len(s.StatusMessages))
	copy(next.StatusMessages, s.StatusMessages)
	return next
}

// snapshot copies every slice a reader could write through, down to clip
// metadata, so callers cannot reach the store's state.
func (s ConversationState) snapshot() ConversationState {
	next := s
	next.Messages = slices.Clone(s.Messages)
	for i := range next.Messages {
		clips := slices.Clone(next.Messages[i].ToolsData)
		for j := range clips {
			clips[j].Metadata = slices.Clone(clips[j].Metadata)
		}
		next.Messages[i].ToolsData = clips
	}
	next.StatusMessages = slices.Clone(s.StatusMessages)
	return next
}
