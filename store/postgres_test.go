package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/kjd1374/shopping-sub000/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const partition = "oliveyoung_skincare"

var fixedNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newPostgresStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	p := NewPostgres(sqlx.NewDb(mockDB, "postgres"))
	p.now = func() time.Time { return fixedNow }
	return p, mock
}

func sampleListings() []models.RankedListing {
	return []models.RankedListing{
		{Rank: 1, Title: "독도 토너", Brand: "라운드랩", Image: "https://img.test/1.jpg", OriginURL: "https://shop.test/p/1"},
		{Rank: 2, Title: "다이브인 세럼", Brand: "토리든", Image: "https://img.test/2.jpg", OriginURL: "https://shop.test/p/2"},
	}
}

func expectWrites(mock sqlmock.Sqlmock, pattern string) {
	for _, l := range sampleListings() {
		mock.ExpectExec(pattern).
			WithArgs(l.Rank, l.Title, l.Brand, l.Image, l.OriginURL, partition, fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
}

func TestReplacePartition_UpsertThenDelete(t *testing.T) {
	p, mock := newPostgresStore(t)

	mock.ExpectBegin()
	expectWrites(mock, `INSERT INTO products .+ ON CONFLICT \(origin_url\) DO UPDATE`)
	mock.ExpectExec(`DELETE FROM products WHERE product_type = \$1 AND updated_at <> \$2`).
		WithArgs(partition, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, p.ReplacePartition(context.Background(), partition, sampleListings()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_FallsBackWhenConstraintMissing(t *testing.T) {
	p, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`ON CONFLICT`).
		WillReturnError(&pq.Error{Code: "42P10", Message: "there is no unique or exclusion constraint matching the ON CONFLICT specification"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectWrites(mock, `INSERT INTO products \(rank, title, brand, image, origin_url, product_type, updated_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)$`)
	mock.ExpectExec(`DELETE FROM products`).
		WithArgs(partition, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, p.ReplacePartition(context.Background(), partition, sampleListings()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_WriteFailureNeverDeletes(t *testing.T) {
	p, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO products`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO products`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := p.ReplacePartition(context.Background(), partition, sampleListings())
	assert.Equal(t, models.ErrCodePersistence, models.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_CommitFailure(t *testing.T) {
	p, mock := newPostgresStore(t)

	mock.ExpectBegin()
	expectWrites(mock, `INSERT INTO products`)
	mock.ExpectExec(`DELETE FROM products`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

	err := p.ReplacePartition(context.Background(), partition, sampleListings())
	assert.Equal(t, models.ErrCodePersistence, models.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePartition_EmptyBatchRejected(t *testing.T) {
	p, mock := newPostgresStore(t)

	err := p.ReplacePartition(context.Background(), partition, nil)
	assert.Equal(t, models.ErrCodePersistence, models.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPartition(t *testing.T) {
	p, mock := newPostgresStore(t)

	cols := []string{"rank", "title", "brand", "image", "origin_url", "product_type", "updated_at"}
	mock.ExpectQuery(`SELECT .+ FROM products WHERE product_type = \$1 ORDER BY rank ASC`).
		WithArgs(partition).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "독도 토너", "라운드랩", "https://img.test/1.jpg", "https://shop.test/p/1", partition, fixedNow).
			AddRow(2, "다이브인 세럼", "토리든", "https://img.test/2.jpg", "https://shop.test/p/2", partition, fixedNow))

	rows, err := p.ListPartition(context.Background(), partition)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://shop.test/p/1", rows[0].OriginURL)
	assert.Equal(t, partition, rows[1].CategoryKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPartition_Empty(t *testing.T) {
	p, mock := newPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM products`).
		WithArgs("musinsa_top").
		WillReturnRows(sqlmock.NewRows([]string{"rank"}))

	rows, err := p.ListPartition(context.Background(), "musinsa_top")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}
