package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/aurachat/aura/store"
)

func (d *DB) CreateAttachment(ctx context.Context, create *store.Attachment) (*store.Attachment, error) {
	stmt := `INSERT INTO attachment (uid, creator_id, filename, mime_type, size, url, thumbnail_url, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.UID, create.CreatorID, create.Filename, create.MimeType, create.Size,
		create.URL, create.ThumbnailURL, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}

	return create, nil
}

func (d *DB) ListAttachments(ctx context.Context, find *store.FindAttachment) ([]*store.Attachment, error) {
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

	query := `SELECT id, uid, creator_id, filename, mime_type, size, url, thumbnail_url, created_ts
		FROM attachment WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Attachment, 0)
	for rows.Next() {
		attachment := &store.Attachment{}
		if err := rows.Scan(
			&attachment.ID, &attachment.UID, &attachment.CreatorID, &attachment.Filename,
			&attachment.MimeType, &attachment.Size, &attachment.URL, &attachment.ThumbnailURL,
			&attachment.CreatedTs,
		); err != nil {
			return nil, err
		}
		list = append(list, attachment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteAttachment(ctx context.Context, delete *store.DeleteAttachment) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM attachment WHERE id = $1`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}

	return nil
}
