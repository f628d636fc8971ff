package chat

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/aurachat/aura/server/ai"
	"github.com/aurachat/aura/store"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int32
	threads  map[int32]*store.Thread
	messages map[int32]*store.Message

	// liveLog records every live flag transition in order.
	liveLog []bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads:  map[int32]*store.Thread{},
		messages: map[int32]*store.Message{},
	}
}

func (f *fakeStore) allocate() int32 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) addThread(t *store.Thread) *store.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == 0 {
		t.ID = f.allocate()
	}
	copied := *t
	f.threads[t.ID] = &copied
	return t
}

func (f *fakeStore) addMessage(m *store.Message) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == 0 {
		m.ID = f.allocate()
	}
	copied := *m
	f.messages[m.ID] = &copied
	return m
}

func (f *fakeStore) GetThread(_ context.Context, find *store.FindThread) (*store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.threads {
		if find.ID != nil && t.ID != *find.ID {
			continue
		}
		if find.UID != nil && t.UID != *find.UID {
			continue
		}
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) UpdateThread(_ context.Context, update *store.UpdateThread) (*store.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[update.ID]
	if !ok {
		return nil, errors.New("thread not found")
	}
	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Pinned != nil {
		t.Pinned = *update.Pinned
	}
	if update.SetLive != nil {
		t.IsLive = true
		started := update.SetLive.StartedTs
		streamID := update.SetLive.StreamID
		t.StreamStartedTs = &started
		t.CurrentStreamID = &streamID
		f.liveLog = append(f.liveLog, true)
	}
	if update.ClearLive {
		t.IsLive = false
		t.StreamStartedTs = nil
		t.CurrentStreamID = nil
		f.liveLog = append(f.liveLog, false)
	}
	copied := *t
	return &copied, nil
}

func (f *fakeStore) CreateThreadWithFirstTurn(_ context.Context, thread *store.Thread, userMsg *store.Message, assistantMsg *store.Message) (*store.Thread, error) {
	f.mu.Lock()
	thread.ID = f.allocate()
	copied := *thread
	f.threads[thread.ID] = &copied
	f.mu.Unlock()

	userMsg.ThreadID = thread.ID
	assistantMsg.ThreadID = thread.ID
	f.addMessage(userMsg)
	f.addMessage(assistantMsg)
	return thread, nil
}

func (f *fakeStore) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for id := int32(1); id <= f.nextID; id++ {
		m, ok := f.messages[id]
		if !ok {
			continue
		}
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.UID != nil && m.UID != *find.UID {
			continue
		}
		if find.ThreadID != nil && m.ThreadID != *find.ThreadID {
			continue
		}
		if find.RowStatus != nil && m.RowStatus != *find.RowStatus {
			continue
		}
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeStore) GetMessage(ctx context.Context, find *store.FindMessage) (*store.Message, error) {
	list, err := f.ListMessages(ctx, find)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (f *fakeStore) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	return f.addMessage(create), nil
}

func (f *fakeStore) UpdateMessage(_ context.Context, update *store.UpdateMessage) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[update.ID]
	if !ok {
		return nil, errors.New("message not found")
	}
	if update.Parts != nil {
		m.Parts = *update.Parts
	}
	if update.Metadata != nil {
		m.Metadata = update.Metadata
	}
	if update.Edited != nil {
		m.Edited = *update.Edited
	}
	if update.EditedTs != nil {
		m.EditedTs = update.EditedTs
	}
	if update.RowStatus != nil {
		m.RowStatus = *update.RowStatus
	}
	if update.UpdatedTs != nil {
		m.UpdatedTs = *update.UpdatedTs
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) message(id int32) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok {
		copied := *m
		return &copied
	}
	return nil
}

func (f *fakeStore) thread(id int32) *store.Thread {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.threads[id]; ok {
		copied := *t
		return &copied
	}
	return nil
}

func (f *fakeStore) liveTransitions() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.liveLog))
	copy(out, f.liveLog)
	return out
}

// fakeGenerator replays a scripted event sequence.
type fakeGenerator struct {
	mu     sync.Mutex
	events []ai.StreamEvent
	genErr error

	images   []*ai.GeneratedImage
	imageErr error

	completion    string
	completionErr error
	completeCalls int
}

func (g *fakeGenerator) StreamGenerate(ctx context.Context, _ *ai.GenerateRequest) (<-chan ai.StreamEvent, <-chan error) {
	events := make(chan ai.StreamEvent, len(g.events))
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		defer close(errc)
		for _, event := range g.events {
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		if g.genErr != nil {
			errc <- g.genErr
		}
	}()
	return events, errc
}

func (g *fakeGenerator) GenerateImages(_ context.Context, _ *ai.ImageRequest) ([]*ai.GeneratedImage, error) {
	return g.images, g.imageErr
}

func (g *fakeGenerator) Complete(_ context.Context, _ string, _ []ai.ChatMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeCalls++
	return g.completion, g.completionErr
}

func (g *fakeGenerator) completeCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completeCalls
}
