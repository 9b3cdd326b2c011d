package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

type memoryEntry struct {
	id      string
	report  *models.ForecastReport
	expires time.Time
}

// MemoryStore keeps reports in process. Entries expire after ttl and the oldest entry is
// evicted once maxEntries is reached.
type MemoryStore struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mutex   sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

// NewMemoryStore creates a MemoryStore. A zero ttl or maxEntries disables that limit.
func NewMemoryStore(ttl time.Duration, maxEntries int) *MemoryStore {
	return &MemoryStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Save stores report under its request ID, replacing any previous report with that ID.
func (s *MemoryStore) Save(_ context.Context, report *models.ForecastReport) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	s.evictExpiredLocked(now)

	if el, ok := s.entries[report.RequestID]; ok {
		s.order.Remove(el)
		delete(s.entries, report.RequestID)
	}
	for s.maxEntries > 0 && s.order.Len() >= s.maxEntries {
		s.removeLocked(s.order.Front())
	}

	entry := &memoryEntry{id: report.RequestID, report: report}
	if s.ttl > 0 {
		entry.expires = now.Add(s.ttl)
	}
	s.entries[report.RequestID] = s.order.PushBack(entry)
	return nil
}

// Get returns the report saved under requestID.
func (s *MemoryStore) Get(_ context.Context, requestID string) (*models.ForecastReport, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	el, ok := s.entries[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		s.removeLocked(el)
		return nil, ErrNotFound
	}
	return entry.report, nil
}

// Len returns the number of stored reports, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.order.Len()
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// evictExpiredLocked drops expired entries. Insertion order equals expiry order.
func (s *MemoryStore) evictExpiredLocked(now time.Time) {
	for el := s.order.Front(); el != nil; {
		entry := el.Value.(*memoryEntry)
		if entry.expires.IsZero() || now.Before(entry.expires) {
			return
		}
		next := el.Next()
		s.removeLocked(el)
		el = next
	}
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	entry := s.order.Remove(el).(*memoryEntry)
	delete(s.entries, entry.id)
}
