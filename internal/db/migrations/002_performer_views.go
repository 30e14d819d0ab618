package migrations

// PerformerViews adds hourly rollups over poll_stats
var PerformerViews = &Migration{
	ID:   "002_performer_views",
	Name: "002_performer_views",
	UpSQL: `
	CREATE OR REPLACE VIEW poll_stats_hourly AS
	SELECT
		date_trunc('hour', time) AS hour,
		MAX(polls) - MIN(polls) AS polls,
		MAX(failures) - MIN(failures) AS failures,
		MAX(states_seen) - MIN(states_seen) AS states_seen,
		AVG(last_latency_ms)::BIGINT AS avg_latency_ms
	FROM poll_stats
	GROUP BY hour;

	CREATE OR REPLACE VIEW performer_presence_hourly AS
	SELECT
		date_trunc('hour', time) AS hour,
		performer_id,
		COUNT(*) AS snapshots_online
	FROM poll_stats, UNNEST(online_ids) AS performer_id
	GROUP BY hour, performer_id;
	`,
	DownSQL: `
	DROP VIEW IF EXISTS performer_presence_hourly;
	DROP VIEW IF EXISTS poll_stats_hourly;
	`,
}
