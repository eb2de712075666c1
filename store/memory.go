package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kjd1374/shopping-sub000/models"
)

// Memory is a process-local Store used when no database is configured.
// Like the products table, an origin URL lives in at most one partition.
type Memory struct {
	mu    sync.RWMutex
	rows  map[string]memRow // origin_url -> row
	batch uint64
	now   func() time.Time
}

type memRow struct {
	listing models.RankedListing
	batch   uint64
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]memRow), now: time.Now}
}

// ReplacePartition implements Store.
func (m *Memory) ReplacePartition(_ context.Context, productType string, listings []models.RankedListing) error {
	if len(listings) == 0 {
		return emptyBatchError(productType)
	}
	stamp := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.batch++
	for _, l := range listings {
		l.CategoryKey = productType
		l.CapturedAt = stamp
		m.rows[l.OriginURL] = memRow{listing: l, batch: m.batch}
	}
	for url, row := range m.rows {
		if row.listing.CategoryKey == productType && row.batch != m.batch {
			delete(m.rows, url)
		}
	}
	return nil
}

// ListPartition implements Store.
func (m *Memory) ListPartition(_ context.Context, productType string) ([]models.RankedListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.RankedListing{}
	for _, row := range m.rows {
		if row.listing.CategoryKey == productType {
			out = append(out, row.listing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}
