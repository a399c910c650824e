package runstore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    repo TEXT NOT NULL,
    issue_number INTEGER NOT NULL,
    issue_title TEXT,
    branch TEXT,
    outcome TEXT NOT NULL,
    plan TEXT,
    review TEXT,
    review_note TEXT,
    final_attempt INTEGER DEFAULT 0,
    failing_gates TEXT,
    error TEXT,
    pr_url TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_issue ON runs(repo, issue_number);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);

CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    attempt_index INTEGER NOT NULL,
    feedback TEXT,
    gates TEXT,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    issue_number INTEGER,
    state TEXT NOT NULL,
    attempt INTEGER,
    message TEXT,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
`
