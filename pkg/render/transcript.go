package render

import (
	"strings"

	"github.com/killallgit/vidchat/pkg/chat"
)

const streamingCursor = "▍"

type Renderer struct {
	styles        *Styles
	width         int
	highlightJSON bool
}

type Option func(*Renderer)

func WithStyles(s *Styles) Option {
	return func(r *Renderer) { r.styles = s }
}

// WithHighlightJSON shows attached clips as highlighted JSON instead of a
// table.
func WithHighlightJSON(enabled bool) Option {
	return func(r *Renderer) { r.highlightJSON = enabled }
}

func New(width int, opts ...Option) *Renderer {
	if width <= 0 {
		width = 80 // Default fallback
	}
	r := &Renderer{styles: DefaultStyles(), width: width}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Transcript renders the whole conversation: every message, the pending
// status lines, a loading hint and the error, if any.
func (r *Renderer) Transcript(state chat.ConversationState) string {
	blocks := make([]string, 0, len(state.Messages)+3)
	for _, msg := range state.Messages {
		if block := r.Message(msg); block != "" {
			blocks = append(blocks, block)
		}
	}

	if status := r.Status(state.StatusMessages); status != "" {
		blocks = append(blocks, status)
	}
	if state.Loading {
		blocks = append(blocks, r.styles.Loading.Render("Searching your videos..."))
	}
	if state.ErrorMessage != "" {
		blocks = append(blocks, r.Error(state.ErrorMessage))
	}
	return strings.Join(blocks, "\n\n")
}

// Message renders one turn. Empty AI turns render nothing.
func (r *Renderer) Message(msg chat.Message) string {
	wrap := r.width
	switch {
	case msg.IsInitial():
		return r.styles.WelcomeMessage.Width(wrap).Render(msg.Text)

	case msg.IsUser():
		out := r.styles.UserMessage.Width(wrap).Render("> " + msg.Text)
		if msg.SearchQuery != "" && msg.SearchQuery != msg.Text {
			out += "\n" + r.styles.SearchQuery.Render("searched: "+msg.SearchQuery)
		}
		return out

	case msg.IsAI():
		if msg.IsEmpty() && !msg.IsStreaming {
			return ""
		}
		text := msg.Text
		if msg.IsStreaming {
			text += streamingCursor
		}
		var parts []string
		if strings.TrimSpace(text) != "" {
			parts = append(parts, r.styles.AssistantMessage.Width(wrap).Render(text))
		}
		if msg.HasToolsData() {
			parts = append(parts, r.Clips(msg.ToolsData))
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// Clips renders attached clips as a table or as highlighted JSON.
func (r *Renderer) Clips(clips []chat.ClipResult) string {
	if r.highlightJSON {
		return HighlightJSON(clips)
	}
	return r.ClipTable(clips)
}

func (r *Renderer) Status(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	rendered := make([]string, len(lines))
	for i, line := range lines {
		rendered[i] = r.styles.StatusMessage.Render("• " + line)
	}
	return strings.Join(rendered, "\n")
}

func (r *Renderer) Error(text string) string {
	return r.styles.ErrorMessage.Width(r.width).Render("! " + text)
}
