// Package storage keeps the captures completed during one kiosk run in memory.
package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/fotobox/internal/models"
)

type SessionStore struct {
	sessions map[string]*models.CaptureRecord
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.CaptureRecord),
	}
}

// Add stores record under a fresh ID and returns that ID.
func (s *SessionStore) Add(record *models.CaptureRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.sessions[record.ID] = record
	return record.ID
}

func (s *SessionStore) Get(sessionID string) (*models.CaptureRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

// List returns all records, newest first.
func (s *SessionStore) List() []*models.CaptureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.CaptureRecord, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
