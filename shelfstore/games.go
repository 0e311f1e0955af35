package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Game is a domain record uniquely identified by the composite key
// (GameID, PlatformID). The JSON tags are the wire payload shape used by
// both the outbox and incoming sync changes.
type Game struct {
	GameID       string   `json:"gameId"`
	PlatformID   int64    `json:"platformId"`
	Title        string   `json:"title"`
	PlatformName string   `json:"platformName"`
	Status       string   `json:"status"`
	Rating       float64  `json:"rating"`
	ReviewScore  float64  `json:"reviewScore"`
	ReviewURL    string   `json:"reviewUrl"`
	ReviewSource string   `json:"reviewSource"`
	CoverURL     string   `json:"coverUrl"`
	Genres       []string `json:"genres"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// ErrNotFound is returned by the single-record getters.
var ErrNotFound = errors.New("shelfstore: not found")

// UpsertGameTx inserts or replaces a game by its composite key.
func UpsertGameTx(ctx context.Context, tx *sql.Tx, g *Game) error {
	genres, err := json.Marshal(g.Genres)
	if err != nil {
		return fmt.Errorf("failed to marshal genres: %w", err)
	}
	if g.Genres == nil {
		genres = []byte(`[]`)
	}
	updatedAt := g.UpdatedAt
	if updatedAt == "" {
		updatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (game_id, platform_id, title, platform_name, status,
			aggregate_rating, review_score, review_url, review_source, cover_url, genres, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_id, platform_id) DO UPDATE SET
			title = excluded.title,
			platform_name = excluded.platform_name,
			status = excluded.status,
			aggregate_rating = excluded.aggregate_rating,
			review_score = excluded.review_score,
			review_url = excluded.review_url,
			review_source = excluded.review_source,
			cover_url = excluded.cover_url,
			genres = excluded.genres,
			updated_at = excluded.updated_at
	`, g.GameID, g.PlatformID, g.Title, g.PlatformName, g.Status,
		g.Rating, g.ReviewScore, g.ReviewURL, g.ReviewSource, g.CoverURL, string(genres), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert game %s/%d: %w", g.GameID, g.PlatformID, err)
	}
	return nil
}

// DeleteGameTx removes a game by its composite key. Deleting a missing
// row is not an error (pull replays must be idempotent).
func DeleteGameTx(ctx context.Context, tx *sql.Tx, gameID string, platformID int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM games WHERE game_id = ? AND platform_id = ?`, gameID, platformID); err != nil {
		return fmt.Errorf("failed to delete game %s/%d: %w", gameID, platformID, err)
	}
	return nil
}

// GetGame loads a single game by composite key.
func (s *Store) GetGame(ctx context.Context, gameID string, platformID int64) (*Game, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT game_id, platform_id, title, platform_name, status,
			aggregate_rating, review_score, review_url, review_source, cover_url, genres, updated_at
		FROM games WHERE game_id = ? AND platform_id = ?
	`, gameID, platformID)
	return scanGame(row)
}

// ListGames returns every game ordered by title then platform name.
func (s *Store) ListGames(ctx context.Context) ([]Game, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT game_id, platform_id, title, platform_name, status,
			aggregate_rating, review_score, review_url, review_source, cover_url, genres, updated_at
		FROM games ORDER BY title, platform_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var g Game
	var genres string
	err := row.Scan(&g.GameID, &g.PlatformID, &g.Title, &g.PlatformName, &g.Status,
		&g.Rating, &g.ReviewScore, &g.ReviewURL, &g.ReviewSource, &g.CoverURL, &genres, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan game: %w", err)
	}
	if genres != "" {
		if err := json.Unmarshal([]byte(genres), &g.Genres); err != nil {
			g.Genres = nil
		}
	}
	return &g, nil
}

// SaveGame writes the game and enqueues the matching outbox upsert as one
// unit. A crash between the two cannot leave them inconsistent.
func (s *Store) SaveGame(ctx context.Context, g *Game) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal game payload: %w", err)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := UpsertGameTx(ctx, tx, g); err != nil {
			return err
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntityGame,
			Operation:  OpUpsert,
			Payload:    payload,
		})
	})
}

// DeleteGame removes the game locally and enqueues the delete. The outbox
// payload carries only the identity fields.
func (s *Store) DeleteGame(ctx context.Context, gameID string, platformID int64) error {
	payload, err := json.Marshal(map[string]any{"gameId": gameID, "platformId": platformID})
	if err != nil {
		return fmt.Errorf("failed to marshal game key: %w", err)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := DeleteGameTx(ctx, tx, gameID, platformID); err != nil {
			return err
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntityGame,
			Operation:  OpDelete,
			Payload:    payload,
		})
	})
}
