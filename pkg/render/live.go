package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/killallgit/vidchat/pkg/chat"
)

// LiveWriter prints one reply to a plain writer while it streams. Text is
// written as it grows; a trailing bracket section is held back until the
// reply finishes, since it may still turn into a clip payload.
type LiveWriter struct {
	mu       sync.Mutex
	w        io.Writer
	r        *Renderer
	start    int
	written  string
	statuses int
}

// NewLiveWriter follows the turns appended after state.
func NewLiveWriter(w io.Writer, r *Renderer, state chat.ConversationState) *LiveWriter {
	return &LiveWriter{w: w, r: r, start: len(state.Messages)}
}

// Update writes whatever became visible since the last call. It can be
// passed to chat.Store.Subscribe directly.
func (l *LiveWriter) Update(state chat.ConversationState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(state.StatusMessages); n > l.statuses {
		for _, line := range state.StatusMessages[l.statuses:] {
			fmt.Fprintln(l.w, l.r.Status([]string{line}))
		}
		l.statuses = n
	} else if n < l.statuses {
		l.statuses = n
	}

	msg, ok := l.reply(state)
	if !ok {
		return
	}
	stable := msg.Text
	if i := strings.LastIndex(stable, "["); i >= 0 {
		stable = stable[:i]
	}
	if len(stable) > len(l.written) && strings.HasPrefix(stable, l.written) {
		io.WriteString(l.w, stable[len(l.written):])
		l.written = stable
	}
}

// Finish writes the rest of the reply, its clips and the error message.
func (l *LiveWriter) Finish(state chat.ConversationState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg, ok := l.reply(state); ok {
		switch {
		case strings.HasPrefix(msg.Text, l.written):
			io.WriteString(l.w, msg.Text[len(l.written):])
		default:
			io.WriteString(l.w, "\n"+msg.Text)
		}
		l.written = msg.Text
		if l.written != "" {
			io.WriteString(l.w, "\n")
		}
		if msg.HasToolsData() {
			fmt.Fprintln(l.w, l.r.Clips(msg.ToolsData))
		}
	}
	if state.ErrorMessage != "" {
		fmt.Fprintln(l.w, l.r.Error(state.ErrorMessage))
	}
}

func (l *LiveWriter) reply(state chat.ConversationState) (chat.Message, bool) {
	idx := state.LastIndex()
	if idx < l.start || idx < 0 {
		return chat.Message{}, false
	}
	msg := state.Messages[idx]
	return msg, msg.IsAI()
}
