package repository

import "fmt"

const (
	decisionsTable    = "decisions"
	observationsTable = "observations"
)

// Schema returns the idempotent DDL for the decision audit trail and the
// observation history used for warm start.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id String,
			symbol LowCardinality(String),
			hypothesis LowCardinality(String),
			direction Int8,
			position_size Float64,
			confidence Float64,
			expected_net_return Float64,
			log_odds_ratio Float64,
			regime_stale UInt8,
			observation_time DateTime64(3, 'UTC'),
			emitted_at DateTime64(3, 'UTC'),
			hypothesis_json String
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, observation_time, id)`, database, decisionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			symbol LowCardinality(String),
			ts DateTime64(3, 'UTC'),
			ret Float64,
			log_volatility Float64,
			slope Float64,
			order_book_imbalance Float64,
			funding_rate Float64,
			rsi Float64,
			volume Float64,
			aux String
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, ts)
		TTL toDateTime(ts) + INTERVAL 30 DAY`, database, observationsTable),
	}
}

func qualified(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}
