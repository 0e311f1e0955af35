package shelfsync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

type settingChange struct {
	key     string
	value   string
	deleted bool
}

// PullOnce fetches every server-side change since the stored cursor and
// applies all of them inside a single local transaction. The cursor
// advances to the server-supplied value, or to the eventId of the last
// applied change when the server omits one; an empty-changes response
// still persists a non-empty returned cursor. After a successful apply
// the settings refresh hooks fire and the store-changed signal is
// published.
func (s *Syncer) PullOnce(ctx context.Context) (applied int, err error) {
	cursor, err := s.store.Cursor(ctx)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Pull(ctx, cursor)
	if err != nil {
		return 0, fmt.Errorf("pull failed: %w", err)
	}

	if len(resp.Changes) == 0 {
		if resp.Cursor != "" && resp.Cursor != cursor {
			if err := s.store.SetCursor(ctx, resp.Cursor); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}

	var settingChanges []settingChange
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		lastEventID := ""
		for i := range resp.Changes {
			ch := &resp.Changes[i]
			ok, sc, applyErr := s.applyChangeTx(ctx, tx, ch)
			if applyErr != nil {
				return applyErr
			}
			if sc != nil {
				settingChanges = append(settingChanges, *sc)
			}
			if ok {
				applied++
			}
			if ch.EventID != "" {
				lastEventID = ch.EventID
			}
		}

		next := resp.Cursor
		if next == "" {
			next = lastEventID
		}
		return shelfstore.SetCursorTx(ctx, tx, next)
	})
	if err != nil {
		return 0, err
	}

	// Mirror updates and refresh hooks run only after the transaction
	// committed, so dependent services never observe uncommitted state.
	// Hooks fire once per touched key, with the value that won the page.
	for _, sc := range lastChangePerKey(settingChanges) {
		if sc.deleted {
			shelfstore.DropSetting(sc.key)
		} else {
			shelfstore.PublishSetting(sc.key, sc.value)
		}
	}

	if applied > 0 {
		s.notifier.Publish()
	}
	return applied, nil
}

// lastChangePerKey collapses repeated changes to the same key down to
// the final one, keeping first-touch order.
func lastChangePerKey(changes []settingChange) []settingChange {
	if len(changes) < 2 {
		return changes
	}
	index := make(map[string]int, len(changes))
	var out []settingChange
	for _, sc := range changes {
		if i, seen := index[sc.key]; seen {
			out[i] = sc
			continue
		}
		index[sc.key] = len(out)
		out = append(out, sc)
	}
	return out
}

// applyChangeTx applies one server change. Malformed payloads drop the
// change (never an error); applying the same change twice yields the
// same stored state. ok reports whether the change touched local state.
func (s *Syncer) applyChangeTx(ctx context.Context, tx *sql.Tx, ch *SyncChangeEvent) (ok bool, sc *settingChange, err error) {
	switch ch.EntityType {
	case shelfstore.EntityGame:
		if ch.Operation == shelfstore.OpDelete {
			gameID, platformID, keyOK := GameKeyFromPayload(ch.Payload)
			if !keyOK {
				s.logger.Warn("dropping game delete with bad identity", "eventId", ch.EventID)
				return false, nil, nil
			}
			return true, nil, shelfstore.DeleteGameTx(ctx, tx, gameID, platformID)
		}
		g, normOK := NormalizeGame(ch.Payload)
		if !normOK {
			s.logger.Warn("dropping malformed game change", "eventId", ch.EventID)
			return false, nil, nil
		}
		return true, nil, shelfstore.UpsertGameTx(ctx, tx, g)

	case shelfstore.EntityTag:
		if ch.Operation == shelfstore.OpDelete {
			id, keyOK := TagIDFromPayload(ch.Payload)
			if !keyOK {
				s.logger.Warn("dropping tag delete with bad identity", "eventId", ch.EventID)
				return false, nil, nil
			}
			return true, nil, shelfstore.DeleteTagTx(ctx, tx, id)
		}
		t, normOK := NormalizeTag(ch.Payload)
		if !normOK {
			s.logger.Warn("dropping malformed tag change", "eventId", ch.EventID)
			return false, nil, nil
		}
		return true, nil, shelfstore.UpsertTagTx(ctx, tx, t)

	case shelfstore.EntityView:
		if ch.Operation == shelfstore.OpDelete {
			id, keyOK := ViewIDFromPayload(ch.Payload)
			if !keyOK {
				s.logger.Warn("dropping view delete with bad identity", "eventId", ch.EventID)
				return false, nil, nil
			}
			return true, nil, shelfstore.DeleteViewTx(ctx, tx, id)
		}
		v, normOK := NormalizeView(ch.Payload)
		if !normOK {
			s.logger.Warn("dropping malformed view change", "eventId", ch.EventID)
			return false, nil, nil
		}
		return true, nil, shelfstore.UpsertViewTx(ctx, tx, v)

	case shelfstore.EntitySetting:
		key, value, normOK := NormalizeSetting(ch.Payload)
		if !normOK {
			s.logger.Warn("dropping malformed setting change", "eventId", ch.EventID)
			return false, nil, nil
		}
		if ch.Operation == shelfstore.OpDelete {
			if err := shelfstore.DeleteSettingTx(ctx, tx, key); err != nil {
				return false, nil, err
			}
			return true, &settingChange{key: key, deleted: true}, nil
		}
		if err := shelfstore.SetSettingTx(ctx, tx, key, value); err != nil {
			return false, nil, err
		}
		return true, &settingChange{key: key, value: value}, nil

	default:
		s.logger.Warn("dropping change for unknown entity type",
			"eventId", ch.EventID, "entityType", ch.EntityType)
		return false, nil, nil
	}
}
