package storage

const schema = `
-- The 'decks' table mirrors one synced source page per row.
CREATE TABLE IF NOT EXISTS decks (
    id TEXT PRIMARY KEY,
    page_title TEXT NOT NULL,
    last_updated DATETIME NOT NULL
);

-- The 'cards' table stores each card plus its scheduling state, ordered
-- by position within its deck. A NULL due date marks a new card.
CREATE TABLE IF NOT EXISTS cards (
    deck_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    interval INTEGER NOT NULL DEFAULT 0,
    ease REAL NOT NULL DEFAULT 2.5,
    due DATETIME,
    review_count INTEGER NOT NULL DEFAULT 0,
    suspended INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY(deck_id, position),
    FOREIGN KEY(deck_id) REFERENCES decks(id)
);

-- Whole-structure JSON records: the persisted study session and the
-- cumulative statistics, one row each.
CREATE TABLE IF NOT EXISTS records (
    name TEXT PRIMARY KEY,
    body TEXT NOT NULL
);

-- Failed remote pushes wait here in FIFO order until connectivity
-- returns.
CREATE TABLE IF NOT EXISTS push_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at DATETIME NOT NULL,
    payload TEXT NOT NULL
);
`
