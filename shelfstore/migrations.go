package shelfstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel values substituted for blank text fields during migration.
// These fields are used as secondary sort/display keys, so they must
// never be empty or NULL.
const (
	UnknownTitle    = "Unknown title"
	UnknownPlatform = "Unknown platform"
)

// A migration rewrites the schema (and existing rows) from version-1 to
// version. Migrations are append-only: never edit an entry that has
// shipped, add a new one. Row transforms must be idempotent no-ops when
// re-applied to already-migrated rows.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{1, "base schema", migrateBaseSchema},
	{2, "split composite external id", migrateSplitExternalID},
	{3, "default blank display fields", migrateBlankDisplayFields},
	{4, "unify review fields", migrateUnifyReviewFields},
	{5, "canonical 0-10 rating scale", migrateRatingScale},
}

// migrate applies every migration above the stored schema version, in
// version order, each inside its own transaction. Any failure aborts
// store initialization with no partial schema for that step.
func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if err := m.apply(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
		s.logger.Info("applied schema migration", "version", m.version, "name", m.name)
	}

	return nil
}

// Version 1: the legacy schema as shipped to the first clients. Games
// carry a composite external_id and the per-aggregator review columns
// that later versions fold into the unified review fields.
func migrateBaseSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id      TEXT NOT NULL DEFAULT '',
			platform_id      INTEGER NOT NULL DEFAULT 0,
			title            TEXT NOT NULL DEFAULT '',
			platform_name    TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT '',
			aggregate_rating REAL NOT NULL DEFAULT 0,
			metacritic_score REAL NOT NULL DEFAULT 0,
			metacritic_url   TEXT NOT NULL DEFAULT '',
			opencritic_score REAL NOT NULL DEFAULT 0,
			opencritic_url   TEXT NOT NULL DEFAULT '',
			cover_url        TEXT NOT NULL DEFAULT '',
			genres           TEXT NOT NULL DEFAULT '[]',
			updated_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			name  TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS views (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			name    TEXT NOT NULL DEFAULT '',
			filters TEXT NOT NULL DEFAULT '{}',
			sort_by TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS outbox (
			op_id         TEXT PRIMARY KEY,
			entity_type   TEXT NOT NULL,
			operation     TEXT NOT NULL CHECK (operation IN ('upsert','delete')),
			payload       TEXT NOT NULL DEFAULT '{}',
			client_ts     TEXT NOT NULL,
			created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error    TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS sync_meta (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Version 2: split the legacy composite identifier "<gameId>::<platformId>"
// into game_id and platform_id. A row with no separator keeps the whole
// string as game_id and platform_id 0. An existing valid (positive)
// platform_id wins over the parsed fragment.
func migrateSplitExternalID(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE games ADD COLUMN game_id TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, external_id, platform_id FROM games WHERE game_id = ''`)
	if err != nil {
		return err
	}
	type split struct {
		id         int64
		gameID     string
		platformID int64
	}
	var updates []split
	for rows.Next() {
		var id, platformID int64
		var externalID string
		if err := rows.Scan(&id, &externalID, &platformID); err != nil {
			rows.Close()
			return err
		}
		gameID, parsedPlatform := SplitExternalID(externalID)
		if platformID <= 0 {
			platformID = parsedPlatform
		}
		updates = append(updates, split{id: id, gameID: gameID, platformID: platformID})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE games SET game_id = ?, platform_id = ? WHERE id = ?`,
			u.gameID, u.platformID, u.id); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_games_key ON games (game_id, platform_id)`)
	return err
}

// SplitExternalID parses a legacy "<gameId>::<platformId>" identifier.
// Without a separator the whole string is the game id and the platform id
// is unset (0). A non-numeric platform fragment also leaves it unset.
func SplitExternalID(externalID string) (gameID string, platformID int64) {
	gameID = strings.TrimSpace(externalID)
	idx := strings.Index(gameID, "::")
	if idx < 0 {
		return gameID, 0
	}
	fragment := gameID[idx+2:]
	gameID = gameID[:idx]
	if n, err := strconv.ParseInt(strings.TrimSpace(fragment), 10, 64); err == nil && n > 0 {
		platformID = n
	}
	return gameID, platformID
}

// Version 3: blank or whitespace-only display fields fall back to fixed
// sentinel strings rather than staying empty.
func migrateBlankDisplayFields(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE games SET title = ? WHERE trim(title) = ''`, UnknownTitle); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE games SET platform_name = ? WHERE trim(platform_name) = ''`, UnknownPlatform)
	return err
}

// Version 4: mirror the per-aggregator score columns into the unified
// review_score/review_url/review_source triple. Metacritic wins when both
// sides are defined; when only one side holds a score the other side's
// score backfills the missing value.
func migrateUnifyReviewFields(ctx context.Context, tx *sql.Tx) error {
	alters := []string{
		`ALTER TABLE games ADD COLUMN review_score REAL NOT NULL DEFAULT 0`,
		`ALTER TABLE games ADD COLUMN review_url TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE games ADD COLUMN review_source TEXT NOT NULL DEFAULT ''`,
	}
	for _, stmt := range alters {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, metacritic_score, metacritic_url, opencritic_score, opencritic_url
		FROM games
		WHERE review_source = '' AND (metacritic_score > 0 OR metacritic_url <> '' OR opencritic_score > 0 OR opencritic_url <> '')
	`)
	if err != nil {
		return err
	}
	type unified struct {
		id     int64
		score  float64
		url    string
		source string
	}
	var updates []unified
	for rows.Next() {
		var id int64
		var mScore, oScore float64
		var mURL, oURL string
		if err := rows.Scan(&id, &mScore, &mURL, &oScore, &oURL); err != nil {
			rows.Close()
			return err
		}
		u := unified{id: id}
		switch {
		case mScore > 0 || mURL != "":
			u.score, u.url, u.source = mScore, mURL, "metacritic"
			if u.score == 0 && oScore > 0 {
				u.score = oScore
			}
		default:
			u.score, u.url, u.source = oScore, oURL, "opencritic"
			if u.score == 0 && mScore > 0 {
				u.score = mScore
			}
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE games SET review_score = ?, review_url = ?, review_source = ? WHERE id = ?`,
			u.score, u.url, u.source, u.id); err != nil {
			return err
		}
	}
	return nil
}

// Version 5: legacy externally-sourced ratings were stored on a 0-100
// scale by some importers. Anything above the canonical 0-10 range is
// rewritten by magnitude heuristic; rows already canonical are skipped.
func migrateRatingScale(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE games
		SET aggregate_rating = round(aggregate_rating / 10.0, 1)
		WHERE aggregate_rating > 10 AND aggregate_rating <= 100
	`)
	return err
}
