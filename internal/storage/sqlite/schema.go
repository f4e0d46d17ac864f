// -----------------------------------------------------------------------
// Schema - Initial table and index definitions
// -----------------------------------------------------------------------

package sqlite

// initialSchema creates the core tables. Timestamps are stored as Unix
// seconds (UTC). Deletions happen only at finalize, so all foreign keys
// are RESTRICT; finalize deletes in dependency order.
var initialSchema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_filename TEXT NOT NULL,
		original_path TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		mime_type TEXT,
		width INTEGER,
		height INTEGER,
		sha256 TEXT,
		perceptual_hash TEXT,
		detected_timestamp INTEGER,
		timestamp_source TEXT NOT NULL DEFAULT 'none',
		final_timestamp INTEGER,
		timestamp_candidates TEXT NOT NULL DEFAULT '[]',
		confidence TEXT NOT NULL DEFAULT 'none',
		reviewed_at INTEGER,
		discarded INTEGER NOT NULL DEFAULT 0,
		processing_error TEXT,
		exact_group_id TEXT,
		exact_group_confidence TEXT,
		similar_group_id TEXT,
		similar_group_confidence TEXT,
		similar_group_type TEXT,
		output_path TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		progress_total INTEGER NOT NULL DEFAULT 0,
		progress_current INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		current_filename TEXT,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	)`,

	`CREATE TABLE IF NOT EXISTS job_files (
		job_id INTEGER NOT NULL,
		file_id INTEGER NOT NULL,
		PRIMARY KEY (job_id, file_id),
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE RESTRICT,
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE RESTRICT
	)`,

	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		usage_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS file_tags (
		file_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		PRIMARY KEY (file_id, tag_id),
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE RESTRICT,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE RESTRICT
	)`,

	`CREATE TABLE IF NOT EXISTS user_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL,
		decision_type TEXT NOT NULL,
		decision_value TEXT,
		decided_at INTEGER NOT NULL,
		FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE RESTRICT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_files_sha256 ON files(sha256)`,
	`CREATE INDEX IF NOT EXISTS idx_files_exact_group ON files(exact_group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_similar_group ON files(similar_group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_discarded ON files(discarded)`,
	`CREATE INDEX IF NOT EXISTS idx_files_processing_error ON files(processing_error)`,
	`CREATE INDEX IF NOT EXISTS idx_files_final_timestamp ON files(final_timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_job_files_file ON job_files(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_file ON user_decisions(file_id)`,
}
