package shelfstore

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// newLegacyDB builds a database frozen at schema version 1, so tests can
// seed legacy rows before the remaining migrations run.
func newLegacyDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, migrateBaseSchema(ctx, tx))
	require.NoError(t, tx.Commit())
	_, err = db.Exec(`PRAGMA user_version = 1`)
	require.NoError(t, err)
	return db
}

func TestMigrateSplitExternalID(t *testing.T) {
	db := newLegacyDB(t)
	_, err := db.Exec(`
		INSERT INTO games (external_id, title) VALUES ('42::130', 'Chrono Trigger');
		INSERT INTO games (external_id, title) VALUES ('42', 'Chrono Trigger DS');
		INSERT INTO games (external_id, platform_id, title) VALUES ('7::999', 48, 'Existing platform wins');
		INSERT INTO games (external_id, title) VALUES ('9::snes', 'Bad fragment');
	`)
	require.NoError(t, err)

	_, err = OpenDB(db)
	require.NoError(t, err)

	type key struct {
		gameID     string
		platformID int64
	}
	rows, err := db.Query(`SELECT title, game_id, platform_id FROM games`)
	require.NoError(t, err)
	defer rows.Close()
	got := map[string]key{}
	for rows.Next() {
		var title string
		var k key
		require.NoError(t, rows.Scan(&title, &k.gameID, &k.platformID))
		got[title] = k
	}
	require.NoError(t, rows.Err())

	require.Equal(t, key{"42", 130}, got["Chrono Trigger"])
	require.Equal(t, key{"42", 0}, got["Chrono Trigger DS"])
	// A valid pre-existing numeric platform id beats the parsed fragment.
	require.Equal(t, key{"7", 48}, got["Existing platform wins"])
	// Non-numeric fragment leaves the platform unset.
	require.Equal(t, key{"9", 0}, got["Bad fragment"])
}

func TestMigrateBlankDisplayFields(t *testing.T) {
	db := newLegacyDB(t)
	_, err := db.Exec(`
		INSERT INTO games (external_id, title, platform_name) VALUES ('1::1', '', '');
		INSERT INTO games (external_id, title, platform_name) VALUES ('2::1', '   ', ' SNES ');
		INSERT INTO games (external_id, title, platform_name) VALUES ('3::1', 'Kept', 'PC');
	`)
	require.NoError(t, err)

	_, err = OpenDB(db)
	require.NoError(t, err)

	var title, platform string
	require.NoError(t, db.QueryRow(`SELECT title, platform_name FROM games WHERE game_id='1'`).Scan(&title, &platform))
	require.Equal(t, UnknownTitle, title)
	require.Equal(t, UnknownPlatform, platform)

	require.NoError(t, db.QueryRow(`SELECT title FROM games WHERE game_id='2'`).Scan(&title))
	require.Equal(t, UnknownTitle, title)

	require.NoError(t, db.QueryRow(`SELECT title, platform_name FROM games WHERE game_id='3'`).Scan(&title, &platform))
	require.Equal(t, "Kept", title)
	require.Equal(t, "PC", platform)
}

func TestMigrateUnifyReviewFields(t *testing.T) {
	db := newLegacyDB(t)
	_, err := db.Exec(`
		INSERT INTO games (external_id, title, metacritic_score, metacritic_url)
			VALUES ('1::1', 'metacritic only', 88, 'https://www.metacritic.com/game/x');
		INSERT INTO games (external_id, title, opencritic_score, opencritic_url)
			VALUES ('2::1', 'opencritic only', 91, 'https://opencritic.com/game/y');
		INSERT INTO games (external_id, title, metacritic_url, opencritic_score)
			VALUES ('3::1', 'backfilled score', 'https://www.metacritic.com/game/z', 75);
		INSERT INTO games (external_id, title) VALUES ('4::1', 'no reviews');
	`)
	require.NoError(t, err)

	_, err = OpenDB(db)
	require.NoError(t, err)

	var score float64
	var url, source string

	require.NoError(t, db.QueryRow(`SELECT review_score, review_url, review_source FROM games WHERE game_id='1'`).
		Scan(&score, &url, &source))
	require.Equal(t, 88.0, score)
	require.Equal(t, "https://www.metacritic.com/game/x", url)
	require.Equal(t, "metacritic", source)

	require.NoError(t, db.QueryRow(`SELECT review_score, review_source FROM games WHERE game_id='2'`).
		Scan(&score, &source))
	require.Equal(t, 91.0, score)
	require.Equal(t, "opencritic", source)

	// Only a URL on the preferred side: the other side's score backfills.
	require.NoError(t, db.QueryRow(`SELECT review_score, review_source FROM games WHERE game_id='3'`).
		Scan(&score, &source))
	require.Equal(t, 75.0, score)
	require.Equal(t, "metacritic", source)

	require.NoError(t, db.QueryRow(`SELECT review_score, review_source FROM games WHERE game_id='4'`).
		Scan(&score, &source))
	require.Equal(t, 0.0, score)
	require.Equal(t, "", source)
}

func TestMigrateRatingScale(t *testing.T) {
	db := newLegacyDB(t)
	_, err := db.Exec(`
		INSERT INTO games (external_id, title, aggregate_rating) VALUES ('1::1', 'percent scale', 87);
		INSERT INTO games (external_id, title, aggregate_rating) VALUES ('2::1', 'already canonical', 8.7);
		INSERT INTO games (external_id, title, aggregate_rating) VALUES ('3::1', 'boundary', 10);
	`)
	require.NoError(t, err)

	_, err = OpenDB(db)
	require.NoError(t, err)

	var rating float64
	require.NoError(t, db.QueryRow(`SELECT aggregate_rating FROM games WHERE game_id='1'`).Scan(&rating))
	require.Equal(t, 8.7, rating)
	require.NoError(t, db.QueryRow(`SELECT aggregate_rating FROM games WHERE game_id='2'`).Scan(&rating))
	require.Equal(t, 8.7, rating)
	// Exactly 10 is a valid canonical value and must not be rescaled.
	require.NoError(t, db.QueryRow(`SELECT aggregate_rating FROM games WHERE game_id='3'`).Scan(&rating))
	require.Equal(t, 10.0, rating)
}

func TestMigrationsIdempotentOnReopen(t *testing.T) {
	db := newLegacyDB(t)
	_, err := db.Exec(`INSERT INTO games (external_id, title) VALUES ('42::130', 'Chrono Trigger')`)
	require.NoError(t, err)

	s, err := OpenDB(db)
	require.NoError(t, err)

	// Re-running migrate against the already-migrated database must not
	// change anything.
	require.NoError(t, s.migrate(context.Background()))

	var gameID string
	var platformID int64
	require.NoError(t, db.QueryRow(`SELECT game_id, platform_id FROM games`).Scan(&gameID, &platformID))
	require.Equal(t, "42", gameID)
	require.Equal(t, int64(130), platformID)

	var version int
	require.NoError(t, db.QueryRow(`PRAGMA user_version`).Scan(&version))
	require.Equal(t, 5, version)
}
