package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type entry struct {
	mu    sync.Mutex
	state State
}

// Store keeps sessions in memory and expires idle ones after ttl.
type Store struct {
	cache *cache.Cache
	newID func() string
}

// NewStore returns a Store. ttl <= 0 keeps sessions until deleted.
func NewStore(ttl time.Duration) *Store {
	expiration, cleanup := ttl, ttl/2
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	return &Store{
		cache: cache.New(expiration, cleanup),
		newID: uuid.NewString,
	}
}

// Create stores a fresh session and returns it.
func (s *Store) Create() State {
	state := New(s.newID())
	s.cache.Set(state.ID, &entry{state: state}, cache.DefaultExpiration)
	return state
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (State, error) {
	e, err := s.entry(id)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Update applies fn under the session lock and stores whatever state it returns.
func (s *Store) Update(id string, fn func(State) (State, error)) (State, error) {
	e, err := s.entry(id)
	if err != nil {
		return State{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fn(e.state)
	e.state = next
	s.cache.Set(id, e, cache.DefaultExpiration)
	return next, err
}

// Delete removes the session.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

func (s *Store) entry(id string) (*entry, error) {
	value, ok := s.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := value.(*entry)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}
