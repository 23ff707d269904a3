package chat

// Apply returns the state that results from applying cmd to state. It never
// mutates its input and never fails: commands that do not fit the current
// state (an index past the end, an attach with no messages) leave it as is.
func Apply(state ConversationState, cmd Command) ConversationState {
	next := state.clone()

	switch c := cmd.(type) {
	case AppendMessages:
		next.Messages = append(next.Messages, c.Messages...)

	case ReplaceMessageAt:
		if c.Index < 0 || c.Index >= len(next.Messages) {
			return state
		}
		if next.Messages[c.Index].IsUser() {
			return state
		}
		next.Messages[c.Index] = c.Message

	case AppendToken:
		if c.Token == "" {
			return state
		}
		last := len(next.Messages) - 1
		if last < 0 || !next.Messages[last].IsAI() {
			msg := NewAIMessage(c.Question)
			msg.Text = c.Token
			msg.TokenSequence = 1
			msg.lastToken = c.Token
			next.Messages = append(next.Messages, msg)
			break
		}
		msg := next.Messages[last]
		if msg.lastToken == c.Token {
			return state
		}
		msg.Text += c.Token
		msg.TokenSequence++
		msg.lastToken = c.Token
		next.Messages[last] = msg

	case SetStreamingFlag:
		last := len(next.Messages) - 1
		if last < 0 || !next.Messages[last].IsAI() {
			return state
		}
		next.Messages[last].IsStreaming = c.Streaming

	case SetLoading:
		next.Loading = c.Loading

	case SetStatusMessages:
		if c.Op == StatusClear {
			next.StatusMessages = []string{}
			break
		}
		for _, s := range c.Messages {
			if s != "" {
				next.StatusMessages = append(next.StatusMessages, s)
			}
		}

	case AttachToolsDataToLastMessage:
		last := len(next.Messages) - 1
		if last < 0 {
			return state
		}
		clips := make([]ClipResult, len(c.Clips))
		copy(clips, c.Clips)
		next.Messages[last].ToolsData = clips

	case RemoveInitialMessage:
		if !next.HasInitialMessage() {
			return state
		}
		next.Messages = next.Messages[1:]

	case ClearAllMessages:
		next.Messages = []Message{}

	case ResetToInitial:
		next.Messages = []Message{}
		if c.Initial.Text != "" {
			initial := c.Initial
			initial.Sender = SenderInitial
			next.Messages = append(next.Messages, initial)
		}
		next.StatusMessages = []string{}
		next.ErrorMessage = ""
		next.Loading = false
		next.Modal = ModalState{Type: ModalMessages}
		next.RunStatus = RunPending

	case SetErrorMessage:
		next.ErrorMessage = c.Text

	case UpdateLastUserMessage:
		idx := next.LastUserIndex()
		if idx < 0 {
			return state
		}
		next.Messages[idx].SearchQuery = c.SearchQuery

	case SetModal:
		next.Modal = c.Modal

	case SetRunStatus:
		next.RunStatus = c.Status

	default:
		return state
	}

	normalizeStreaming(next.Messages)
	return next
}

// ApplyAll folds cmds over state in order.
func ApplyAll(state ConversationState, cmds ...Command) ConversationState {
	for _, cmd := range cmds {
		state = Apply(state, cmd)
	}
	return state
}

// normalizeStreaming keeps at most one message streaming: the last one, and
// only when it is an AI turn.
func normalizeStreaming(messages []Message) {
	last := len(messages) - 1
	for i := range messages {
		if !messages[i].IsStreaming {
			continue
		}
		if i != last || !messages[i].IsAI() {
			messages[i].IsStreaming = false
		}
	}
}
