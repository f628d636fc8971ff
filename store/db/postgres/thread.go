package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aurachat/aura/store"
)

func (d *DB) CreateThread(ctx context.Context, create *store.Thread) (*store.Thread, error) {
	fields := []string{"uid", "creator_id", "title", "pinned", "is_live", "created_ts", "updated_ts", "row_status"}
	args := []any{create.UID, create.CreatorID, create.Title, create.Pinned, create.IsLive, create.CreatedTs, create.UpdatedTs, create.RowStatus.String()}

	stmt := `INSERT INTO thread (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	return create, nil
}

func (d *DB) ListThreads(ctx context.Context, find *store.FindThread) ([]*store.Thread, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.CreatorID != nil {
		where, args = append(where, "creator_id = "+placeholder(len(args)+1)), append(args, *find.CreatorID)
	}
	if find.Pinned != nil {
		where, args = append(where, "pinned = "+placeholder(len(args)+1)), append(args, *find.Pinned)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = "+placeholder(len(args)+1)), append(args, find.RowStatus.String())
	}

	query := `SELECT id, uid, creator_id, title, pinned, is_live, stream_started_ts, current_stream_id, created_ts, updated_ts, row_status
		FROM thread WHERE ` + strings.Join(where, " AND ") + ` ORDER BY pinned DESC, updated_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateThread(ctx context.Context, update *store.UpdateThread) (*store.Thread, error) {
	set, args := []string{}, []any{}

	if update.Title != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *update.Title)
	}
	if update.Pinned != nil {
		set, args = append(set, "pinned = "+placeholder(len(args)+1)), append(args, *update.Pinned)
	}
	if update.RowStatus != nil {
		set, args = append(set, "row_status = "+placeholder(len(args)+1)), append(args, update.RowStatus.String())
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}
	if update.SetLive != nil {
		set = append(set, "is_live = TRUE")
		set, args = append(set, "stream_started_ts = "+placeholder(len(args)+1)), append(args, update.SetLive.StartedTs)
		set, args = append(set, "current_stream_id = "+placeholder(len(args)+1)), append(args, update.SetLive.StreamID)
	} else if update.ClearLive {
		set = append(set, "is_live = FALSE", "stream_started_ts = NULL", "current_stream_id = NULL")
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE thread SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, creator_id, title, pinned, is_live, stream_started_ts, current_stream_id, created_ts, updated_ts, row_status`
	thread, err := scanThread(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("thread not found")
		}
		return nil, fmt.Errorf("failed to update thread: %w", err)
	}

	return thread, nil
}

func (d *DB) DeleteThread(ctx context.Context, delete *store.DeleteThread) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM message WHERE thread_id = $1`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete thread messages: %w", err)
	}
	result, err := d.db.ExecContext(ctx, `DELETE FROM thread WHERE id = $1`, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("thread not found")
	}

	return nil
}

// CreateThreadWithFirstTurn inserts the thread, its first user message and the
// assistant placeholder in a single transaction.
func (d *DB) CreateThreadWithFirstTurn(ctx context.Context, thread *store.Thread, userMsg *store.Message, assistantMsg *store.Message) (*store.Thread, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var streamStartedTs any
	var currentStreamID any
	if thread.StreamStartedTs != nil {
		streamStartedTs = *thread.StreamStartedTs
	}
	if thread.CurrentStreamID != nil {
		currentStreamID = *thread.CurrentStreamID
	}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO thread (uid, creator_id, title, pinned, is_live, stream_started_ts, current_stream_id, created_ts, updated_ts, row_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
		thread.UID, thread.CreatorID, thread.Title, thread.Pinned, thread.IsLive,
		streamStartedTs, currentStreamID, thread.CreatedTs, thread.UpdatedTs, thread.RowStatus.String(),
	).Scan(&thread.ID); err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	for _, msg := range []*store.Message{userMsg, assistantMsg} {
		if msg == nil {
			continue
		}
		msg.ThreadID = thread.ID
		parts, err := store.MarshalParts(msg.Parts)
		if err != nil {
			return nil, err
		}
		metadata, err := store.MarshalMetadata(msg.Metadata)
		if err != nil {
			return nil, err
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO message (uid, thread_id, role, parts, metadata, created_ts, updated_ts, row_status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id`,
			msg.UID, msg.ThreadID, string(msg.Role), parts, metadata, msg.CreatedTs, msg.UpdatedTs, msg.RowStatus.String(),
		).Scan(&msg.ID); err != nil {
			return nil, fmt.Errorf("failed to create first-turn message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit first turn: %w", err)
	}

	return thread, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (*store.Thread, error) {
	thread := &store.Thread{}
	var rowStatus string
	var streamStartedTs sql.NullInt64
	var currentStreamID sql.NullString
	if err := row.Scan(
		&thread.ID, &thread.UID, &thread.CreatorID, &thread.Title, &thread.Pinned,
		&thread.IsLive, &streamStartedTs, &currentStreamID,
		&thread.CreatedTs, &thread.UpdatedTs, &rowStatus,
	); err != nil {
		return nil, err
	}
	thread.RowStatus = store.RowStatus(rowStatus)
	if streamStartedTs.Valid {
		ts := streamStartedTs.Int64
		thread.StreamStartedTs = &ts
	}
	if currentStreamID.Valid {
		id := currentStreamID.String
		thread.CurrentStreamID = &id
	}
	return thread, nil
}
