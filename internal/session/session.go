// Package session persists the signed-in user record of each browser.
//
// A browser's record lives under the fixed key "user" in that device's
// local storage. Store implementations hand out one Repository per device.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/civilens/civilens/internal/civilens"
)

// Key is the local-storage slot holding the session record.
const Key = "user"

var ErrNotFound = errors.New("session not found")

type Repository interface {
	// Load returns ErrNotFound when nothing was saved yet.
	Load(ctx context.Context) (civilens.Session, error)
	// Save overwrites the stored record.
	Save(ctx context.Context, s civilens.Session) error
}

type Store interface {
	For(deviceID string) Repository
}

// Memory is a single in-process record.
type Memory struct {
	mu    sync.Mutex
	sess  civilens.Session
	saved bool
	saves int
}

func (m *Memory) Load(context.Context) (civilens.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return civilens.Session{}, ErrNotFound
	}
	return m.sess, nil
}

func (m *Memory) Save(_ context.Context, s civilens.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = s
	m.saved = true
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// MemoryStore keeps one Memory per device. Records are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[string]*Memory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]*Memory)}
}

func (s *MemoryStore) For(deviceID string) Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.devices[deviceID]
	if !ok {
		m = &Memory{}
		s.devices[deviceID] = m
	}
	return m
}
