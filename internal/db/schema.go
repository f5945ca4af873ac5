package db

// NotesDBSchema creates the notes table. Timestamps are unix microseconds, UTC.
// AUTOINCREMENT keeps IDs monotonic: a deleted ID is never handed out again.
const NotesDBSchema = `
CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL CHECK (length(trim(title)) > 0),
    content TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL CHECK (updated_at >= created_at)
);
CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title);
`
