package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an open connection
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// DB exposes the underlying connection for migrations
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping verifies the connection
func (c *Client) Ping() error {
	return c.db.Ping()
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StorePollStats stores one statistics snapshot
func (c *Client) StorePollStats(stats *types.PollStats) error {
	query := `
		INSERT INTO poll_stats (
			time, session_id, provider, polls, failures,
			states_seen, matched_states, unmatched_states,
			online_performers, active_markers, online_ids,
			last_latency_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	onlineIDs := stats.OnlineIDs
	if onlineIDs == nil {
		onlineIDs = []string{}
	}

	_, err := c.db.Exec(query,
		stats.Time,
		stats.SessionID,
		stats.Provider,
		int64(stats.Polls),
		int64(stats.Failures),
		int64(stats.StatesSeen),
		int64(stats.MatchedStates),
		int64(stats.UnmatchedStates),
		int64(stats.OnlinePerformers),
		int64(stats.ActiveMarkers),
		pq.Array(onlineIDs),
		stats.LastLatency.Milliseconds(),
		int64(stats.Uptime.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store poll stats: %w", err)
	}
	return nil
}

// GetPollStats retrieves statistics for a time range, newest first
func (c *Client) GetPollStats(start, end time.Time) ([]*types.PollStats, error) {
	query := `
		SELECT
			time, session_id, provider, polls, failures,
			states_seen, matched_states, unmatched_states,
			online_performers, active_markers, online_ids,
			last_latency_ms, uptime_seconds
		FROM poll_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll stats: %w", err)
	}
	defer rows.Close()

	var result []*types.PollStats
	for rows.Next() {
		var (
			s                              types.PollStats
			polls, failures, seen, matched int64
			unmatched, online, markers     int64
			latencyMs, uptimeSeconds       int64
			onlineIDs                      []string
		)

		if err := rows.Scan(
			&s.Time,
			&s.SessionID,
			&s.Provider,
			&polls,
			&failures,
			&seen,
			&matched,
			&unmatched,
			&online,
			&markers,
			pq.Array(&onlineIDs),
			&latencyMs,
			&uptimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan poll stats: %w", err)
		}

		s.Polls = uint64(polls)
		s.Failures = uint64(failures)
		s.StatesSeen = uint64(seen)
		s.MatchedStates = uint64(matched)
		s.UnmatchedStates = uint64(unmatched)
		s.OnlinePerformers = uint64(online)
		s.ActiveMarkers = uint64(markers)
		s.OnlineIDs = onlineIDs
		s.LastLatency = time.Duration(latencyMs) * time.Millisecond
		s.Uptime = time.Duration(uptimeSeconds) * time.Second

		result = append(result, &s)
	}

	return result, rows.Err()
}

// PerformerUptime returns how many persisted snapshots saw each performer online
// since the given time
func (c *Client) PerformerUptime(since time.Time) (map[string]int64, error) {
	query := `
		SELECT performer_id, COUNT(*)
		FROM poll_stats, UNNEST(online_ids) AS performer_id
		WHERE time >= $1
		GROUP BY performer_id
	`

	rows, err := c.db.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query performer uptime: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan performer uptime: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
