package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aurachat/aura/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	fields := []string{"uid", "username", "nickname", "created_ts", "updated_ts", "row_status"}
	args := []any{create.UID, create.Username, create.Nickname, create.CreatedTs, create.UpdatedTs, create.RowStatus.String()}

	stmt := `INSERT INTO user (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return create, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}
	if find.Username != nil {
		where, args = append(where, "username = "+placeholder(len(args)+1)), append(args, *find.Username)
	}

	query := `SELECT id, uid, username, nickname, created_ts, updated_ts, row_status
		FROM user WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	list := make([]*store.User, 0)
	for rows.Next() {
		user := &store.User{}
		var rowStatus string
		if err := rows.Scan(&user.ID, &user.UID, &user.Username, &user.Nickname, &user.CreatedTs, &user.UpdatedTs, &rowStatus); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.RowStatus = store.RowStatus(rowStatus)
		list = append(list, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	set, args := []string{}, []any{}

	if update.Nickname != nil {
		set, args = append(set, "nickname = "+placeholder(len(args)+1)), append(args, *update.Nickname)
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, time.Now().Unix())
	args = append(args, update.ID)
	stmt := `UPDATE user SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args)) + `
		RETURNING id, uid, username, nickname, created_ts, updated_ts, row_status`
	user := &store.User{}
	var rowStatus string
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&user.ID, &user.UID, &user.Username, &user.Nickname, &user.CreatedTs, &user.UpdatedTs, &rowStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	user.RowStatus = store.RowStatus(rowStatus)

	return user, nil
}

func (d *DB) GetUserByTokenDigest(ctx context.Context, digest string) (*store.User, error) {
	query := `SELECT u.id, u.uid, u.username, u.nickname, u.created_ts, u.updated_ts, u.row_status
		FROM access_token t JOIN user u ON u.id = t.user_id
		WHERE t.digest = ?`
	user := &store.User{}
	var rowStatus string
	if err := d.db.QueryRowContext(ctx, query, digest).Scan(&user.ID, &user.UID, &user.Username, &user.Nickname, &user.CreatedTs, &user.UpdatedTs, &rowStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}
	user.RowStatus = store.RowStatus(rowStatus)

	return user, nil
}

func (d *DB) UpsertAccessToken(ctx context.Context, userID int32, digest string, description string) error {
	stmt := `INSERT INTO access_token (user_id, digest, description, created_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (digest) DO UPDATE SET description = excluded.description`
	if _, err := d.db.ExecContext(ctx, stmt, userID, digest, description, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert access token: %w", err)
	}
	return nil
}
