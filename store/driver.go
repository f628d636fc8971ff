package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that a database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error

	// Thread model related methods.
	CreateThread(ctx context.Context, create *Thread) (*Thread, error)
	ListThreads(ctx context.Context, find *FindThread) ([]*Thread, error)
	UpdateThread(ctx context.Context, update *UpdateThread) (*Thread, error)
	DeleteThread(ctx context.Context, delete *DeleteThread) error

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error)
	DeleteMessage(ctx context.Context, delete *DeleteMessage) error

	// CreateThreadWithFirstTurn creates a thread together with its first
	// user message and the empty assistant placeholder in one transaction.
	CreateThreadWithFirstTurn(ctx context.Context, thread *Thread, userMsg *Message, assistantMsg *Message) (*Thread, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
	UpdateUser(ctx context.Context, update *UpdateUser) (*User, error)
	// GetUserByTokenDigest resolves a personal access token digest to its user.
	GetUserByTokenDigest(ctx context.Context, digest string) (*User, error)
	UpsertAccessToken(ctx context.Context, userID int32, digest string, description string) error

	// Attachment model related methods.
	CreateAttachment(ctx context.Context, create *Attachment) (*Attachment, error)
	ListAttachments(ctx context.Context, find *FindAttachment) ([]*Attachment, error)
	DeleteAttachment(ctx context.Context, delete *DeleteAttachment) error
}
