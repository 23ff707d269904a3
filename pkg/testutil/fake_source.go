package testutil

import (
	"context"
	"sync"

	"github.com/killallgit/vidchat/pkg/stream"
	"github.com/killallgit/vidchat/pkg/transport"
)

// FakeSource is a transport.Source that replays scripted fragments.
type FakeSource struct {
	mu       sync.Mutex
	scripts  [][]stream.Fragment
	requests []transport.Request

	// OpenErr is returned by Open instead of a stream.
	OpenErr error
	// Hold keeps the stream open after the script until ctx is done.
	Hold bool
	// Step, when set, gates each fragment on a receive.
	Step chan struct{}
}

// NewFakeSource creates a source replaying one script per Open call; the
// last script repeats.
func NewFakeSource(scripts ...[]stream.Fragment) *FakeSource {
	return &FakeSource{scripts: scripts}
}

// Texts builds a script of raw text fragments.
func Texts(texts ...string) []stream.Fragment {
	script := make([]stream.Fragment, len(texts))
	for i, t := range texts {
		script[i] = stream.Fragment{Event: stream.TextEvent(t)}
	}
	return script
}

func (f *FakeSource) Open(ctx context.Context, req transport.Request) (<-chan stream.Fragment, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var script []stream.Fragment
	if n := len(f.requests); len(f.scripts) > 0 {
		script = f.scripts[min(n, len(f.scripts))-1]
	}
	openErr, hold, step := f.OpenErr, f.Hold, f.Step
	f.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}

	out := make(chan stream.Fragment)
	go func() {
		defer close(out)
		for _, frag := range script {
			if step != nil {
				select {
				case <-step:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- frag:
			case <-ctx.Done():
				return
			}
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// Requests returns every request Open received.
func (f *FakeSource) Requests() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Request(nil), f.requests...)
}

var _ transport.Source = (*FakeSource)(nil)
