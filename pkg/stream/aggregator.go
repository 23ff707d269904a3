package stream

import (
	"errors"
	"slices"
	"strings"

	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/logger"
)

// ErrEmptyQuestion is returned by Submit for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Phase is the aggregator's position in the lifecycle of one turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFirstToken
	PhaseStreamingText
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingFirstToken:
		return "awaiting_first_token"
	case PhaseStreamingText:
		return "streaming_text"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Dispatcher applies commands to a conversation and returns the new state.
// *chat.Store implements it.
type Dispatcher interface {
	Dispatch(cmds ...chat.Command) chat.ConversationState
}

// Options tunes how events are classified.
type Options struct {
	// StatusPrefix marks a text line as tool status rather than prose.
	StatusPrefix string
	// ReplyNodes lists the graph nodes whose model tokens form the visible
	// reply. Empty accepts tokens from every node.
	ReplyNodes []string
	// SearchTool is the tool whose input carries the search query and whose
	// output is a list of clips.
	SearchTool string
	Logger     *logger.Logger
}

func DefaultOptions() Options {
	return Options{
		StatusPrefix: "Running => ",
		ReplyNodes:   []string{"reflect"},
		SearchTool:   "video-search",
	}
}

// Aggregator turns transport events for one turn at a time into
// conversation commands. It is not safe for concurrent use; callers feed it
// fragments in delivery order.
type Aggregator struct {
	store Dispatcher
	opts  Options
	log   *logger.Logger

	phase     Phase
	question  string
	state     chat.ConversationState
	buffer    strings.Builder
	turnIndex int
	loaded    bool
	attached  string
}

func NewAggregator(store Dispatcher, opts Options) *Aggregator {
	if opts.StatusPrefix == "" {
		opts.StatusPrefix = DefaultOptions().StatusPrefix
	}
	if opts.SearchTool == "" {
		opts.SearchTool = DefaultOptions().SearchTool
	}
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("aggregator")
	}
	return &Aggregator{
		store:     store,
		opts:      opts,
		log:       log,
		turnIndex: -1,
	}
}

func (a *Aggregator) Phase() Phase {
	return a.phase
}

// Submit starts a new turn: the welcome message is dropped, the user turn is
// appended and the conversation is marked loading. The AI turn is created
// later, when the first content arrives.
func (a *Aggregator) Submit(question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyQuestion
	}

	a.question = question
	a.buffer.Reset()
	a.turnIndex = -1
	a.loaded = false
	a.attached = ""
	a.phase = PhaseAwaitingFirstToken

	a.dispatch(
		chat.RemoveInitialMessage{},
		chat.AppendMessages{Messages: []chat.Message{chat.NewUserMessage(question)}},
		chat.SetLoading{Loading: true},
		chat.SetErrorMessage{Text: ""},
		chat.ClearStatus(),
		chat.SetRunStatus{Status: chat.RunRunning},
	)
	return nil
}

// Handle classifies one event and applies the resulting commands before
// returning. Events outside an active turn and unrecognized events are
// ignored.
func (a *Aggregator) Handle(ev Event) {
	if a.phase != PhaseAwaitingFirstToken && a.phase != PhaseStreamingText {
		a.log.Debug("Ignoring event outside active turn", "phase", a.phase, "kind", ev.Kind)
		return
	}
	if ev.Channel != "" && ev.Channel != ChannelEvents {
		return
	}

	switch ev.Kind {
	case KindText:
		a.handleText(ev.Text)
	case KindToolStart:
		a.handleToolStart(ev)
	case KindToolEnd:
		a.handleToolEnd(ev)
	case KindChatModelStream:
		a.handleToken(ev)
	case KindChatModelEnd:
		if a.isReplyNode(ev.Node) {
			a.dispatch(chat.SetStreamingFlag{Streaming: false})
			a.phase = PhaseDone
		}
	case KindChatModelStart:
		a.log.Debug("Model started", "name", ev.Name, "node", ev.Node)
	default:
		a.log.Debug("Ignoring unknown event", "name", ev.Name, "channel", ev.Channel)
	}
}

// Close ends the current turn. A complete or cancelled stream finishes the
// turn as is; an error keeps what was already streamed and surfaces a
// user-visible message.
func (a *Aggregator) Close(reason CloseReason, err error) {
	if a.phase == PhaseIdle || a.phase == PhaseError {
		return
	}

	if reason == CloseError && err == nil {
		err = errors.New("stream closed with error")
	}

	cmds := []chat.Command{
		chat.SetStreamingFlag{Streaming: false},
		chat.SetLoading{Loading: false},
		chat.ClearStatus(),
	}

	switch reason {
	case CloseError:
		se := ClassifyError(err)
		status := chat.RunError
		if se.Class == ClassTimeout {
			status = chat.RunTimeout
		}
		a.log.Error("Stream failed", "error", err, "class", se.Class, "retryable", se.Retryable)
		cmds = append(cmds,
			chat.SetErrorMessage{Text: UserMessage(err)},
			chat.SetRunStatus{Status: status},
		)
		a.phase = PhaseError
	case CloseCancelled:
		cmds = append(cmds, chat.SetRunStatus{Status: chat.RunInterrupted})
		a.phase = PhaseDone
	default:
		if a.buffer.Len() > 0 {
			if _, _, ok := ExtractPayload(a.buffer.String()); !ok && strings.Contains(a.buffer.String(), "[") {
				a.log.Debug("Stream ended without a parsable payload", "bytes", a.buffer.Len())
			}
		}
		cmds = append(cmds, chat.SetRunStatus{Status: chat.RunSuccess})
		a.phase = PhaseDone
	}

	a.dispatch(cmds...)
}

func (a *Aggregator) handleText(text string) {
	prefix := a.opts.StatusPrefix
	for text != "" {
		if strings.HasPrefix(text, prefix) {
			line, rest, _ := strings.Cut(text, "\n")
			if status := strings.TrimSpace(line); status != "" {
				a.dispatch(chat.AppendStatus(status))
			}
			text = rest
			continue
		}

		prose := text
		text = ""
		if idx := strings.Index(prose, "\n"+prefix); idx >= 0 {
			prose, text = prose[:idx+1], prose[idx+1:]
		}
		a.appendProse(prose)
	}
}

func (a *Aggregator) appendProse(prose string) {
	if prose == "" {
		return
	}
	// Blank lines around status markers are not a reply.
	if a.turnIndex < 0 && strings.TrimSpace(prose) == "" {
		return
	}
	a.buffer.WriteString(prose)
	a.ensureTurn()

	display, clips, ok := ExtractPayload(a.buffer.String())
	if !ok && strings.Contains(display, "[") {
		a.log.Debug("Payload not ready", "bytes", a.buffer.Len())
	}

	if a.turnIndex < len(a.state.Messages) {
		msg := a.state.Messages[a.turnIndex]
		msg.Text = display
		a.dispatch(chat.ReplaceMessageAt{Index: a.turnIndex, Message: msg})
	}
	if ok {
		a.attachClips(clips)
	}
	a.markLoaded()
	a.phase = PhaseStreamingText
}

func (a *Aggregator) handleToolStart(ev Event) {
	a.dispatch(chat.AppendStatus(a.opts.StatusPrefix + ev.Name))
	if ev.Name != a.opts.SearchTool {
		return
	}
	if query := ToolQuery(ev.Input); query != "" {
		a.dispatch(chat.UpdateLastUserMessage{SearchQuery: query})
	}
}

func (a *Aggregator) handleToolEnd(ev Event) {
	if ev.Name != a.opts.SearchTool {
		return
	}
	clips, ok := ParseClips(ev.Output)
	if !ok {
		a.log.Debug("Search output carried no clips", "tool", ev.Name, "bytes", len(ev.Output))
		return
	}
	a.ensureTurn()
	a.attachClips(clips)
	a.markLoaded()
}

func (a *Aggregator) handleToken(ev Event) {
	if !a.isReplyNode(ev.Node) || ev.Text == "" {
		return
	}
	a.dispatch(
		chat.AppendToken{Token: ev.Text, Question: a.question},
		chat.SetStreamingFlag{Streaming: true},
	)
	a.turnIndex = a.state.LastIndex()
	a.markLoaded()
	a.phase = PhaseStreamingText
}

// ensureTurn appends the AI turn for the current question if it does not
// exist yet.
func (a *Aggregator) ensureTurn() {
	if a.turnIndex >= 0 {
		return
	}
	if last, ok := a.state.LastMessage(); ok && last.IsAI() && a.state.LastUserIndex() < a.state.LastIndex() {
		a.turnIndex = a.state.LastIndex()
		return
	}
	a.dispatch(chat.AppendMessages{Messages: []chat.Message{chat.NewAIMessage(a.question)}})
	a.turnIndex = a.state.LastIndex()
}

// attachClips attaches clips unless the same set is already attached.
func (a *Aggregator) attachClips(clips []chat.ClipResult) {
	keys := make([]string, len(clips))
	for i, c := range clips {
		keys[i] = c.Key()
	}
	fingerprint := strings.Join(keys, "|")
	if fingerprint == a.attached {
		return
	}
	a.attached = fingerprint
	a.dispatch(chat.AttachToolsDataToLastMessage{Clips: clips})
}

func (a *Aggregator) markLoaded() {
	if a.loaded {
		return
	}
	a.loaded = true
	a.dispatch(chat.SetLoading{Loading: false})
}

func (a *Aggregator) isReplyNode(node string) bool {
	if len(a.opts.ReplyNodes) == 0 {
		return true
	}
	return slices.Contains(a.opts.ReplyNodes, node)
}

func (a *Aggregator) dispatch(cmds ...chat.Command) {
	a.state = a.store.Dispatch(cmds...)
}
