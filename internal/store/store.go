package store

import "sync"

// Reducer derives the next state from the current one and a message.
// It must not mutate prev.
type Reducer[S, M any] func(prev S, msg M) S

// Listener is called after every dispatch with the resulting state and the
// version that produced it. Listeners run outside the lock and may observe
// dispatches out of order; version tells them which state is newer.
type Listener[S any] func(state S, version uint64)

// Store is an explicit state container. Each screen session owns exactly one;
// nothing here is package-level.
type Store[S, M any] struct {
	mu        sync.RWMutex
	state     S
	reduce    Reducer[S, M]
	listeners map[int]Listener[S]
	nextID    int
	version   uint64 // applied dispatches
}

func New[S, M any](initial S, reduce Reducer[S, M]) *Store[S, M] {
	return &Store[S, M]{
		state:     initial,
		reduce:    reduce,
		listeners: make(map[int]Listener[S]),
	}
}

// Dispatch applies msg under the write lock and notifies listeners outside of it.
// Dispatches are serialized, so every message sees the result of the previous one.
func (s *Store[S, M]) Dispatch(msg M) S {
	s.mu.Lock()
	next := s.reduce(s.state, msg)
	s.state = next
	s.version++
	version := s.version
	listeners := make([]Listener[S], 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next, version)
	}
	return next
}

func (s *Store[S, M]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers l and returns a func that removes it.
func (s *Store[S, M]) Subscribe(l Listener[S]) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
