// Package session drives one conversation: it opens a stream per question,
// feeds the fragments through the aggregator in delivery order and owns
// cancellation and the idle timeout.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/logger"
	"github.com/killallgit/vidchat/pkg/stream"
	"github.com/killallgit/vidchat/pkg/transport"
)

// Options configures a Session.
type Options struct {
	Source  transport.Source
	Builder transport.RequestBuilder
	// IdleTimeout fails a stream that delivers nothing for this long. Zero
	// disables it.
	IdleTimeout time.Duration
	Welcome     string
	Aggregator  stream.Options
}

type Session struct {
	id        string
	requestID int64
	store     *chat.Store
	agg       *stream.Aggregator
	source    transport.Source
	builder   transport.RequestBuilder
	idle      time.Duration
	welcome   string
	log       *logger.Logger

	mu      sync.Mutex
	gen     uint64
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(opts Options) *Session {
	id := uuid.New().String()
	log := logger.WithComponent("session").With("session_id", id)

	store := chat.NewStore(chat.NewConversationState(opts.Welcome))
	aggOpts := opts.Aggregator
	if aggOpts.Logger == nil {
		aggOpts.Logger = log
	}

	return &Session{
		id:        id,
		requestID: time.Now().UnixMilli(),
		store:     store,
		agg:       stream.NewAggregator(store, aggOpts),
		source:    opts.Source,
		builder:   opts.Builder,
		idle:      opts.IdleTimeout,
		welcome:   opts.Welcome,
		log:       log,
		stopped:   true,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Store exposes the conversation for rendering and subscriptions.
func (s *Session) Store() *chat.Store {
	return s.store
}

func (s *Session) State() chat.ConversationState {
	return s.store.State()
}

// Start submits a question and streams the reply in the background. Any
// stream still running is cancelled first. The returned channel closes when
// the new stream has finished.
func (s *Session) Start(ctx context.Context, question string) (<-chan struct{}, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, stream.ErrEmptyQuestion
	}

	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = false
	done := make(chan struct{})
	s.done = done
	if err := s.agg.Submit(question); err != nil {
		s.mu.Unlock()
		cancel()
		close(done)
		return nil, err
	}
	s.mu.Unlock()

	s.log.Info("Submitted question", "generation", gen, "length", len(question))
	go s.run(streamCtx, cancel, gen, question, done)
	return done, nil
}

// Submit is Start followed by waiting for the reply to finish. Stream
// failures end up in the conversation state, not in the returned error.
func (s *Session) Submit(ctx context.Context, question string) error {
	done, err := s.Start(ctx, question)
	if err != nil {
		return err
	}
	<-done
	return nil
}

// Wait blocks until the current stream, if any, has finished.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Cancel stops the running stream. Fragments arriving afterwards are
// dropped.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// ClearChat cancels any stream and resets the conversation to the welcome
// message.
func (s *Session) ClearChat() {
	s.Cancel()
	s.store.Dispatch(chat.ResetToInitial{Initial: chat.NewInitialMessage(s.welcome)})
}

func (s *Session) stopLocked() {
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Debug("Cancelled stream", "generation", s.gen)
	s.agg.Close(stream.CloseCancelled, nil)
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, gen uint64, question string, done chan struct{}) {
	defer close(done)
	defer cancel()

	req := s.builder.Build(question, s.requestID)
	frags, err := s.open(ctx, cancel, req)
	if err != nil {
		s.finish(gen, stream.CloseError, err)
		return
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if s.idle > 0 {
		timer = time.NewTimer(s.idle)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case frag, ok := <-frags:
			if !ok {
				s.finish(gen, stream.CloseComplete, nil)
				return
			}
			if frag.Err != nil {
				s.finish(gen, stream.CloseError, frag.Err)
				return
			}
			if !s.handle(gen, frag.Event) {
				return
			}
			if timer != nil {
				timer.Reset(s.idle)
			}
		case <-idle:
			s.log.Warn("Stream went idle", "generation", gen, "timeout", s.idle)
			cancel()
			s.finish(gen, stream.CloseError, stream.ErrStreamTimeout)
			return
		case <-ctx.Done():
			s.finish(gen, stream.CloseCancelled, nil)
			return
		}
	}
}

// open runs the source handshake under the idle timeout. On expiry the
// stream context is cancelled and ErrStreamTimeout is returned.
func (s *Session) open(ctx context.Context, cancel context.CancelFunc, req transport.Request) (<-chan stream.Fragment, error) {
	if s.idle <= 0 {
		return s.source.Open(ctx, req)
	}

	guard := time.AfterFunc(s.idle, cancel)
	frags, err := s.source.Open(ctx, req)
	if guard.Stop() {
		return frags, err
	}
	s.log.Warn("Stream handshake timed out", "timeout", s.idle)
	if err == nil {
		go func() {
			for range frags {
			}
		}()
	}
	return nil, fmt.Errorf("open stream: %w", stream.ErrStreamTimeout)
}

func (s *Session) handle(gen uint64, ev stream.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.stopped {
		return false
	}
	s.agg.Handle(ev)
	return true
}

func (s *Session) finish(gen uint64, reason stream.CloseReason, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.stopped {
		return
	}
	s.stopped = true
	s.log.Debug("Stream finished", "generation", gen, "reason", reason)
	s.agg.Close(reason, err)
}
