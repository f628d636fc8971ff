package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aurachat/aura/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	parts, err := store.MarshalParts(create.Parts)
	if err != nil {
		return nil, err
	}
	metadata, err := store.MarshalMetadata(create.Metadata)
	if err != nil {
		return nil, err
	}

	fields := []string{"uid", "thread_id", "role", "parts", "metadata", "created_ts", "updated_ts", "row_status"}
	args := []any{create.UID, create.ThreadID, string(create.Role), parts, metadata, create.CreatedTs, create.UpdatedTs, create.RowStatus.String()}

	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.ThreadID != nil {
		where, args = append(where, "thread_id = "+placeholder(len(args)+1)), append(args, *find.ThreadID)
	}
	if find.RowStatus != nil {
		where, args = append(where, "row_status = "+placeholder(len(args)+1)), append(args, find.RowStatus.String())
	}

	query := `SELECT id, uid, thread_id, role, parts, metadata, created_ts, updated_ts, edited, edited_ts, row_status
		FROM message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error) {
	set, args := []string{}, []any{}

	if update.Parts != nil {
		parts, err := store.MarshalParts(*update.Parts)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "parts = "+placeholder(len(args)+1)), append(args, parts)
	}
	if update.Metadata != nil {
		metadata, err := store.MarshalMetadata(update.Metadata)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "metadata = "+placeholder(len(args)+1)), append(args, metadata)
	}
	if update.Edited != nil {
		set, args = append(set, "edited = "+placeholder(len(args)+1)), append(args, *update.Edited)
	}
	if update.EditedTs != nil {
		set, args = append(set, "edited_ts = "+placeholder(len(args)+1)), append(args, *update.EditedTs)
	}
	if update.RowStatus != nil {
		set, args = append(set, "row_status = "+placeholder(len(args)+1)), append(args, update.RowStatus.String())
	}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *update.UpdatedTs)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE message SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, thread_id, role, parts, metadata, created_ts, updated_ts, edited, edited_ts, row_status`
	message, err := scanMessage(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message not found")
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	return message, nil
}

func (d *DB) DeleteMessage(ctx context.Context, delete *store.DeleteMessage) error {
	where, args := []string{}, []any{}
	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.ThreadID != nil {
		where, args = append(where, "thread_id = "+placeholder(len(args)+1)), append(args, *delete.ThreadID)
	}
	if len(where) == 0 {
		return fmt.Errorf("no delete condition")
	}

	if _, err := d.db.ExecContext(ctx, `DELETE FROM message WHERE `+strings.Join(where, " AND "), args...); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

func scanMessage(row rowScanner) (*store.Message, error) {
	message := &store.Message{}
	var role, parts, metadata, rowStatus string
	var editedTs sql.NullInt64
	if err := row.Scan(
		&message.ID, &message.UID, &message.ThreadID, &role, &parts, &metadata,
		&message.CreatedTs, &message.UpdatedTs, &message.Edited, &editedTs, &rowStatus,
	); err != nil {
		return nil, err
	}
	message.Role = store.MessageRole(role)
	message.RowStatus = store.RowStatus(rowStatus)
	if editedTs.Valid {
		ts := editedTs.Int64
		message.EditedTs = &ts
	}

	decoded, err := store.UnmarshalParts(parts)
	if err != nil {
		return nil, err
	}
	message.Parts = decoded

	meta, err := store.UnmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	message.Metadata = meta

	return message, nil
}
