package db

import "context"

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                TEXT PRIMARY KEY,
	status            TEXT NOT NULL DEFAULT 'queued',
	step              TEXT NOT NULL DEFAULT '',
	step_idx          INTEGER NOT NULL DEFAULT 0,
	payload           JSONB NOT NULL,
	voice_locator     TEXT,
	subtitle_locator  TEXT,
	video_locator     TEXT,
	thumbnail_locator TEXT,
	error_message     TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at);
`

// EnsureSchema creates the jobs table if it does not exist. Safe to run on
// every startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.ExecContext(ctx, jobsSchema)
	return err
}
