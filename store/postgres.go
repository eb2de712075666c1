package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kjd1374/shopping-sub000/config"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/lib/pq"
)

const (
	defaultMaxOpenConns = 5
	defaultPingTimeout  = 5 * time.Second
)

// sqlStateNoMatchingConstraint is raised when ON CONFLICT names a column
// set without a unique index.
const sqlStateNoMatchingConstraint = "42P10"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id           BIGSERIAL PRIMARY KEY,
	rank         INTEGER NOT NULL,
	title        TEXT NOT NULL,
	brand        TEXT NOT NULL DEFAULT '',
	image        TEXT NOT NULL DEFAULT '',
	origin_url   TEXT NOT NULL UNIQUE,
	product_type TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS products_product_type_rank_idx ON products (product_type, rank);
`

const (
	insertListing = `INSERT INTO products (rank, title, brand, image, origin_url, product_type, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertListing = insertListing + ` ON CONFLICT (origin_url) DO UPDATE SET
		rank = EXCLUDED.rank,
		title = EXCLUDED.title,
		brand = EXCLUDED.brand,
		image = EXCLUDED.image,
		product_type = EXCLUDED.product_type,
		updated_at = EXCLUDED.updated_at`

	deleteSuperseded = `DELETE FROM products WHERE product_type = $1 AND updated_at <> $2`

	selectPartition = `
		SELECT rank, title, brand, image, origin_url, product_type, updated_at
		FROM products
		WHERE product_type = $1
		ORDER BY rank ASC`
)

// Postgres is the production Store.
type Postgres struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgres wraps an open connection.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// Open connects, applies pool settings and verifies the connection.
func Open(cfg config.DatabaseConfig) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdle)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return NewPostgres(db), nil
}

// EnsureSchema creates the products table when it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// ReplacePartition implements Store.
//
// All rows are upserted by origin_url with one shared batch timestamp, then
// rows of the partition carrying any other timestamp are deleted. When the
// table lacks the unique constraint the upsert is rejected; the transaction
// is rolled back and the swap is retried with plain inserts. In both paths
// nothing is deleted before every new row is written, and a repeated run
// leaves exactly one row per listing.
func (p *Postgres) ReplacePartition(ctx context.Context, productType string, listings []models.RankedListing) error {
	if len(listings) == 0 {
		return emptyBatchError(productType)
	}

	stamp := p.now().UTC().Truncate(time.Microsecond)

	err := p.swap(ctx, upsertListing, productType, listings, stamp)
	if err == nil {
		return nil
	}
	if !isNoMatchingConstraint(err) {
		return models.NewScrapeError(models.ErrCodePersistence, "failed to replace partition "+productType, err)
	}

	slog.Warn("upsert rejected by products table, falling back to insert-then-delete",
		"product_type", productType,
		"error", err,
	)
	if err := p.swap(ctx, insertListing, productType, listings, stamp); err != nil {
		return models.NewScrapeError(models.ErrCodePersistence, "fallback replace of partition "+productType+" failed", err)
	}
	return nil
}

func (p *Postgres) swap(ctx context.Context, write, productType string, listings []models.RankedListing, stamp time.Time) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, l := range listings {
		if _, err := tx.ExecContext(ctx, write,
			l.Rank, l.Title, l.Brand, l.Image, l.OriginURL, productType, stamp,
		); err != nil {
			return fmt.Errorf("failed to write listing %s: %w", l.OriginURL, err)
		}
	}

	res, err := tx.ExecContext(ctx, deleteSuperseded, productType, stamp)
	if err != nil {
		return fmt.Errorf("failed to delete superseded rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit partition swap: %w", err)
	}

	removed, _ := res.RowsAffected()
	slog.Info("partition replaced",
		"product_type", productType,
		"written", len(listings),
		"removed", removed,
	)
	return nil
}

// ListPartition implements Store.
func (p *Postgres) ListPartition(ctx context.Context, productType string) ([]models.RankedListing, error) {
	var rows []models.RankedListing
	if err := p.db.SelectContext(ctx, &rows, selectPartition, productType); err != nil {
		return nil, models.NewScrapeError(models.ErrCodePersistence, "failed to read partition "+productType, err)
	}
	if rows == nil {
		rows = []models.RankedListing{}
	}
	return rows, nil
}

func isNoMatchingConstraint(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == sqlStateNoMatchingConstraint
}
