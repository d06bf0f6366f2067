package history

const schema = `
CREATE TABLE IF NOT EXISTS iterations (
    id TEXT PRIMARY KEY,
    loop_number INTEGER NOT NULL,
    progress BOOLEAN NOT NULL,
    circuit_state TEXT NOT NULL,
    no_progress_count INTEGER NOT NULL,
    summary TEXT,
    duration_ms INTEGER NOT NULL,
    session_id TEXT,
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_iterations_recorded_at ON iterations(recorded_at);
CREATE INDEX IF NOT EXISTS idx_iterations_session_id ON iterations(session_id);
`
