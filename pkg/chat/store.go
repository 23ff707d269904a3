package chat

import "sync"

// Store owns the ConversationState for one session and notifies subscribers
// after every dispatch. It is the only place state changes.
type Store struct {
	mu          sync.RWMutex
	state       ConversationState
	subscribers map[int]func(ConversationState)
	order       []int
	nextID      int
}

func NewStore(initial ConversationState) *Store {
	return &Store{
		state:       initial.clone(),
		subscribers: make(map[int]func(ConversationState)),
	}
}

// Dispatch applies cmds in order and returns a copy of the resulting state.
// Subscribers are called once per Dispatch, outside the lock, in
// subscription order, each with its own copy.
func (s *Store) Dispatch(cmds ...Command) ConversationState {
	if len(cmds) == 0 {
		return s.State()
	}

	s.mu.Lock()
	s.state = ApplyAll(s.state, cmds...)
	state := s.state
	subs := make([]func(ConversationState), 0, len(s.order))
	for _, id := range s.order {
		subs = append(subs, s.subscribers[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state.snapshot())
	}
	return state.snapshot()
}

// State returns a copy of the current state. Writing to it does not change
// the store.
func (s *Store) State() ConversationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// Subscribe registers fn to receive every new state. The returned function
// removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn func(ConversationState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.order = append(s.order, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; !ok {
			return
		}
		delete(s.subscribers, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i:i], s.order[i+1:]...)
				break
			}
		}
	}
}
