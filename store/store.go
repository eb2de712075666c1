// Package store persists ranking partitions. A partition is every row
// sharing one product_type value ({site}_{category}).
package store

import (
	"context"

	"github.com/kjd1374/shopping-sub000/models"
)

// Store is the ranking pipeline's only persistence contract.
type Store interface {
	// ReplacePartition makes listings the new content of the partition.
	// New rows are written before superseded rows are removed, inside one
	// transaction, so a failure leaves the previous content intact.
	ReplacePartition(ctx context.Context, productType string, listings []models.RankedListing) error

	// ListPartition returns the partition ordered by rank.
	ListPartition(ctx context.Context, productType string) ([]models.RankedListing, error)
}

func emptyBatchError(productType string) error {
	return models.NewScrapeError(
		models.ErrCodePersistence,
		"refusing to replace partition "+productType+" with an empty batch",
		nil,
	)
}
