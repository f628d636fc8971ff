package store

import (
	"context"
	"time"

	"github.com/aurachat/aura/internal/profile"
	"github.com/aurachat/aura/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	userCache *cache.Cache // cache for users
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:    driver,
		profile:   profile,
		userCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.userCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateThread(ctx context.Context, create *Thread) (*Thread, error) {
	return s.driver.CreateThread(ctx, create)
}

func (s *Store) ListThreads(ctx context.Context, find *FindThread) ([]*Thread, error) {
	return s.driver.ListThreads(ctx, find)
}

// GetThread returns a single thread or nil when none matches.
func (s *Store) GetThread(ctx context.Context, find *FindThread) (*Thread, error) {
	list, err := s.driver.ListThreads(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateThread(ctx context.Context, update *UpdateThread) (*Thread, error) {
	return s.driver.UpdateThread(ctx, update)
}

func (s *Store) DeleteThread(ctx context.Context, delete *DeleteThread) error {
	return s.driver.DeleteThread(ctx, delete)
}

func (s *Store) CreateThreadWithFirstTurn(ctx context.Context, thread *Thread, userMsg *Message, assistantMsg *Message) (*Thread, error) {
	return s.driver.CreateThreadWithFirstTurn(ctx, thread, userMsg, assistantMsg)
}

func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// GetMessage returns a single message or nil when none matches.
func (s *Store) GetMessage(ctx context.Context, find *FindMessage) (*Message, error) {
	list, err := s.driver.ListMessages(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateMessage(ctx context.Context, update *UpdateMessage) (*Message, error) {
	return s.driver.UpdateMessage(ctx, update)
}

func (s *Store) DeleteMessage(ctx context.Context, delete *DeleteMessage) error {
	return s.driver.DeleteMessage(ctx, delete)
}

func (s *Store) CreateUser(ctx context.Context, create *User) (*User, error) {
	return s.driver.CreateUser(ctx, create)
}

func (s *Store) ListUsers(ctx context.Context, find *FindUser) ([]*User, error) {
	return s.driver.ListUsers(ctx, find)
}

func (s *Store) UpdateUser(ctx context.Context, update *UpdateUser) (*User, error) {
	return s.driver.UpdateUser(ctx, update)
}

// GetUserByTokenDigest resolves an access token digest to a user, with a
// short-lived cache in front of the driver.
func (s *Store) GetUserByTokenDigest(ctx context.Context, digest string) (*User, error) {
	if cached, ok := s.userCache.Get(digest); ok {
		if user, ok := cached.(*User); ok {
			return user, nil
		}
	}
	user, err := s.driver.GetUserByTokenDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.userCache.Set(digest, user)
	}
	return user, nil
}

func (s *Store) UpsertAccessToken(ctx context.Context, userID int32, digest string, description string) error {
	return s.driver.UpsertAccessToken(ctx, userID, digest, description)
}

func (s *Store) CreateAttachment(ctx context.Context, create *Attachment) (*Attachment, error) {
	return s.driver.CreateAttachment(ctx, create)
}

func (s *Store) ListAttachments(ctx context.Context, find *FindAttachment) ([]*Attachment, error) {
	return s.driver.ListAttachments(ctx, find)
}

func (s *Store) DeleteAttachment(ctx context.Context, delete *DeleteAttachment) error {
	return s.driver.DeleteAttachment(ctx, delete)
}
