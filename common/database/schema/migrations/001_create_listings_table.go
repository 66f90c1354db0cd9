package migrations

import "hhresearch/common/database/schema"

// CreateListingsTable stores parsed listings before currency normalization.
// ReplacingMergeTree keeps the newest row per id, so re-fetches overwrite.
var CreateListingsTable = schema.Migration{
	Version:     1,
	Description: "Create listings table",
	Up: `
		CREATE TABLE IF NOT EXISTS listings (
			id String,
			employer String,
			has_salary Bool,
			salary_from Nullable(Float64),
			salary_to Nullable(Float64),
			currency LowCardinality(String),
			gross Bool,
			experience_level LowCardinality(String),
			title String,
			description String,
			keywords Array(String),
			fetched_at DateTime,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id
		SETTINGS index_granularity = 8192
	`,
	Down: `DROP TABLE IF EXISTS listings`,
}

// All lists every migration in version order.
var All = []schema.Migration{
	CreateListingsTable,
}
