package chat

import "fmt"

// Command is an update applied to ConversationState by Apply. The set is
// closed: only types declared in this file implement it.
type Command interface {
	command()
	fmt.Stringer
}

// AppendMessages appends turns to the end of the transcript.
type AppendMessages struct {
	Messages []Message
}

// ReplaceMessageAt swaps the message at Index for Message.
type ReplaceMessageAt struct {
	Index   int
	Message Message
}

// AppendToken appends streamed text to the last AI turn, creating the turn
// when the last message is not an AI message.
type AppendToken struct {
	Token    string
	Question string
}

// SetStreamingFlag marks the last AI turn as receiving tokens or finished.
type SetStreamingFlag struct {
	Streaming bool
}

type SetLoading struct {
	Loading bool
}

// StatusOp selects how SetStatusMessages changes the status list.
type StatusOp int

const (
	StatusAppend StatusOp = iota
	StatusClear
)

type SetStatusMessages struct {
	Op       StatusOp
	Messages []string
}

// AttachToolsDataToLastMessage sets the clips of the most recent message.
type AttachToolsDataToLastMessage struct {
	Clips []ClipResult
}

// RemoveInitialMessage drops the welcome turn if it is first in the transcript.
type RemoveInitialMessage struct{}

// ClearAllMessages empties the transcript.
type ClearAllMessages struct{}

// ResetToInitial replaces the transcript with the single welcome turn.
type ResetToInitial struct {
	Initial Message
}

type SetErrorMessage struct {
	Text string
}

// UpdateLastUserMessage records the search query the agent derived from the
// most recent user turn.
type UpdateLastUserMessage struct {
	SearchQuery string
}

type SetModal struct {
	Modal ModalState
}

type SetRunStatus struct {
	Status RunStatus
}

func (AppendMessages) command()               {}
func (ReplaceMessageAt) command()             {}
func (AppendToken) command()                  {}
func (SetStreamingFlag) command()             {}
func (SetLoading) command()                   {}
func (SetStatusMessages) command()            {}
func (AttachToolsDataToLastMessage) command() {}
func (RemoveInitialMessage) command()         {}
func (ClearAllMessages) command()             {}
func (ResetToInitial) command()               {}
func (SetErrorMessage) command()              {}
func (UpdateLastUserMessage) command()        {}
func (SetModal) command()                     {}
func (SetRunStatus) command()                 {}

func (c AppendMessages) String() string {
	return fmt.Sprintf("AppendMessages(%d)", len(c.Messages))
}

func (c ReplaceMessageAt) String() string {
	return fmt.Sprintf("ReplaceMessageAt(%d)", c.Index)
}

func (c AppendToken) String() string {
	return fmt.Sprintf("AppendToken(%q)", c.Token)
}

func (c SetStreamingFlag) String() string {
	return fmt.Sprintf("SetStreamingFlag(%t)", c.Streaming)
}

func (c SetLoading) String() string {
	return fmt.Sprintf("SetLoading(%t)", c.Loading)
}

func (c SetStatusMessages) String() string {
	if c.Op == StatusClear {
		return "SetStatusMessages(clear)"
	}
	return fmt.Sprintf("SetStatusMessages(append %d)", len(c.Messages))
}

func (c AttachToolsDataToLastMessage) String() string {
	return fmt.Sprintf("AttachToolsDataToLastMessage(%d)", len(c.Clips))
}

func (RemoveInitialMessage) String() string { return "RemoveInitialMessage" }
func (ClearAllMessages) String() string     { return "ClearAllMessages" }
func (ResetToInitial) String() string       { return "ResetToInitial" }

func (c SetErrorMessage) String() string {
	return fmt.Sprintf("SetErrorMessage(%q)", c.Text)
}

func (c UpdateLastUserMessage) String() string {
	return fmt.Sprintf("UpdateLastUserMessage(%q)", c.SearchQuery)
}

func (c SetModal) String() string {
	return fmt.Sprintf("SetModal(%t, %s)", c.Modal.Show, c.Modal.Type)
}

func (c SetRunStatus) String() string {
	return fmt.Sprintf("SetRunStatus(%s)", c.Status)
}

// AppendStatus is shorthand for appending status lines.
func AppendStatus(messages ...string) SetStatusMessages {
	return SetStatusMessages{Op: StatusAppend, Messages: messages}
}

// ClearStatus is shorthand for clearing the status list.
func ClearStatus() SetStatusMessages {
	return SetStatusMessages{Op: StatusClear}
}
