package migrations

// PollStatsSchema creates the poll statistics table
var PollStatsSchema = &Migration{
	ID:   "001_poll_stats",
	Name: "001_poll_stats",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS poll_stats (
			time TIMESTAMPTZ NOT NULL,
			session_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			polls BIGINT NOT NULL,
			failures BIGINT NOT NULL,
			states_seen BIGINT NOT NULL,
			matched_states BIGINT NOT NULL,
			unmatched_states BIGINT NOT NULL,
			online_performers BIGINT NOT NULL,
			active_markers BIGINT NOT NULL,
			online_ids TEXT[] NOT NULL DEFAULT '{}',
			last_latency_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_poll_stats_time ON poll_stats (time DESC);
		CREATE INDEX IF NOT EXISTS idx_poll_stats_session ON poll_stats (session_id);
		CREATE INDEX IF NOT EXISTS idx_poll_stats_online_ids ON poll_stats USING GIN (online_ids);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS poll_stats;
	`,
}
