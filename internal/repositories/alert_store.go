package repositories

import (
	"fmt"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	DefaultMaxAlerts      = 1000
	DefaultAlertRetention = 24 * time.Hour
)

// AlertStore is the bounded in-memory alert ledger. Alerts are kept in
// creation order; the oldest are evicted once the ledger exceeds maxAlerts
// or they age past retention.
type AlertStore struct {
	mu        sync.RWMutex
	alerts    []*models.Alert
	maxAlerts int
	retention time.Duration
	clock     clock.Clock
	lastAt    time.Time
}

// NewAlertStore creates an empty ledger. Non-positive bounds fall back to defaults.
func NewAlertStore(maxAlerts int, retention time.Duration, clk clock.Clock) *AlertStore {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	if retention <= 0 {
		retention = DefaultAlertRetention
	}
	if clk == nil {
		clk = clock.New()
	}
	return &AlertStore{
		alerts:    make([]*models.Alert, 0, maxAlerts),
		maxAlerts: maxAlerts,
		retention: retention,
		clock:     clk,
	}
}

// Create assigns id and created_at, appends the alert and evicts. The stored
// resolution state is always reset.
func (s *AlertStore) Create(alert models.Alert) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(alert)
}

// CreateUnlessActive creates the alert unless an unresolved alert of the same
// type and dedup key was created within window. The check and insert happen
// under one lock. created reports whether a new alert was stored; otherwise
// the existing alert is returned.
func (s *AlertStore) CreateUnlessActive(alert models.Alert, key string, window time.Duration) (models.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-window)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		existing := s.alerts[i]
		if existing.CreatedAt.Before(cutoff) {
			break
		}
		if !existing.Resolved && existing.Type == alert.Type && existing.DedupKey == key {
			return existing.Clone(), false, nil
		}
	}

	alert.DedupKey = key
	created, err := s.insertLocked(alert)
	if err != nil {
		return models.Alert{}, false, err
	}
	return created, true, nil
}

func (s *AlertStore) insertLocked(alert models.Alert) (models.Alert, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.Alert{}, fmt.Errorf("generate alert id: %w", err)
	}

	now := s.clock.Now().UTC()
	if now.Before(s.lastAt) {
		now = s.lastAt
	}
	s.lastAt = now

	stored := alert.Clone()
	stored.ID = id.String()
	stored.CreatedAt = now
	stored.Resolved = false
	stored.ResolvedBy = nil
	stored.ResolvedAt = nil
	if stored.Details == nil {
		stored.Details = models.Details{}
	}

	s.alerts = append(s.alerts, &stored)
	s.evictLocked(now)

	return stored.Clone(), nil
}

// evictLocked drops from the front while over capacity or past retention
func (s *AlertStore) evictLocked(now time.Time) int {
	cutoff := now.Add(-s.retention)
	drop := 0
	for drop < len(s.alerts) {
		remaining := len(s.alerts) - drop
		if remaining > s.maxAlerts || s.alerts[drop].CreatedAt.Before(cutoff) {
			drop++
			continue
		}
		break
	}
	if drop == 0 {
		return 0
	}

	for i := 0; i < drop; i++ {
		s.alerts[i] = nil
	}
	s.alerts = append(s.alerts[:0], s.alerts[drop:]...)
	return drop
}

// Prune applies retention without a create and returns how many alerts left the ledger
func (s *AlertStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evictLocked(s.clock.Now().UTC())
}

// List returns matching alerts, newest first, as independent copies
func (s *AlertStore) List(filter models.AlertFilter) []models.Alert {
	limit := filter.EffectiveLimit()

	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.cutoff()
	out := make([]models.Alert, 0, min(limit, len(s.alerts)))
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if s.alerts[i].CreatedAt.Before(cutoff) {
			break
		}
		if filter.Matches(s.alerts[i]) {
			out = append(out, s.alerts[i].Clone())
		}
	}
	return out
}

// Get returns a copy of the alert or models.ErrNotFound
func (s *AlertStore) Get(id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a := s.findLocked(id)
	if a == nil || a.CreatedAt.Before(s.cutoff()) {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	return a.Clone(), nil
}

// Resolve marks the alert resolved and reports whether this call changed it.
// Resolving twice keeps the first resolved_at and resolved_by.
func (s *AlertStore) Resolve(id string, resolvedBy *string) (models.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.findLocked(id)
	if a == nil || a.CreatedAt.Before(s.cutoff()) {
		return models.Alert{}, false, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	if a.Resolved {
		return a.Clone(), false, nil
	}

	now := s.clock.Now().UTC()
	a.Resolved = true
	a.ResolvedAt = &now
	if resolvedBy != nil && *resolvedBy != "" {
		by := *resolvedBy
		a.ResolvedBy = &by
	}
	return a.Clone(), true, nil
}

// cutoff is the oldest created_at still inside retention. Reads hide aged
// alerts that the next create or Prune will evict.
func (s *AlertStore) cutoff() time.Time {
	return s.clock.Now().UTC().Add(-s.retention)
}

func (s *AlertStore) findLocked(id string) *models.Alert {
	for _, a := range s.alerts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// CountsBySeverity counts unresolved alerts; every severity is present in the result
func (s *AlertStore) CountsBySeverity() map[models.AlertSeverity]int {
	return s.Stats().BySeverity
}

// Stats summarises the ledger
func (s *AlertStore) Stats() models.AlertStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.AlertStats{
		BySeverity: make(map[models.AlertSeverity]int, len(models.Severities)),
	}
	for _, sev := range models.Severities {
		stats.BySeverity[sev] = 0
	}
	cutoff := s.cutoff()
	for _, a := range s.alerts {
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		if a.Resolved {
			continue
		}
		stats.Unresolved++
		stats.BySeverity[a.Severity]++
	}
	return stats
}

// Len reports the number of alerts currently held
func (s *AlertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
