package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"hhresearch/common/cache"
	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("hhresearch/research/storage")

// ClickHouseCache keeps listings in the ReplacingMergeTree `listings` table.
// Reads use FINAL so the newest version of a row wins.
type ClickHouseCache struct {
	db     clickhouse.Conn
	logger *zap.Logger
}

var _ ResultCache = (*ClickHouseCache)(nil)

func NewClickHouseCache(db clickhouse.Conn, logger *zap.Logger) *ClickHouseCache {
	return &ClickHouseCache{db: db, logger: logger}
}

func (c *ClickHouseCache) Get(ctx context.Context, id string) (*models.Listing, error) {
	ctx, span := tracer.Start(ctx, "ClickHouseCache.Get")
	defer span.End()
	span.SetAttributes(telemetry.String("listing.id", id))

	query := `
		SELECT id, employer, has_salary, salary_from, salary_to, currency, gross,
			experience_level, title, description, keywords, fetched_at
		FROM listings FINAL
		WHERE id = ?
		LIMIT 1
	`

	var l models.Listing
	err := c.db.QueryRow(ctx, query, id).Scan(
		&l.ID,
		&l.Employer,
		&l.HasSalary,
		&l.SalaryFrom,
		&l.SalaryTo,
		&l.Currency,
		&l.Gross,
		&l.ExperienceLevel,
		&l.Title,
		&l.Description,
		&l.Keywords,
		&l.FetchedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.CacheIO("selecting listing "+id, err)
	}
	return &l, nil
}

func (c *ClickHouseCache) Put(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracer.Start(ctx, "ClickHouseCache.Put")
	defer span.End()
	span.SetAttributes(telemetry.String("listing.id", listing.ID))

	query := `
		INSERT INTO listings (
			id, employer, has_salary, salary_from, salary_to, currency, gross,
			experience_level, title, description, keywords, fetched_at, updated_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
	`

	keywords := listing.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	if err := c.db.Exec(ctx, query,
		listing.ID,
		listing.Employer,
		listing.HasSalary,
		listing.SalaryFrom,
		listing.SalaryTo,
		listing.Currency,
		listing.Gross,
		listing.ExperienceLevel,
		listing.Title,
		listing.Description,
		keywords,
		listing.FetchedAt,
		time.Now(),
	); err != nil {
		span.RecordError(err)
		c.logger.Warn("failed to store listing", zap.String("id", listing.ID), zap.Error(err))
		return errors.CacheIO("inserting listing "+listing.ID, err)
	}

	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (c *ClickHouseCache) Close() error {
	return nil
}
