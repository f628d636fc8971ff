package store

// Thread is a single conversation owned by a user.
//
// Invariant: IsLive == false implies StreamStartedTs and CurrentStreamID are
// nil. The live fields are only ever written together, by the request that
// owns the in-flight generation.
type Thread struct {
	ID        int32
	UID       string
	CreatorID int32
	Title     string
	Pinned    bool
	CreatedTs int64
	UpdatedTs int64
	RowStatus RowStatus

	// Live-streaming marker. Set while an assistant response is being
	// generated so other readers can detect an in-flight turn.
	IsLive          bool
	StreamStartedTs *int64
	CurrentStreamID *string
}

type FindThread struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	Pinned    *bool
	RowStatus *RowStatus
}

// ThreadStream carries the fields written when a thread goes live.
type ThreadStream struct {
	StartedTs int64
	StreamID  string
}

type UpdateThread struct {
	ID        int32
	Title     *string
	Pinned    *bool
	RowStatus *RowStatus
	UpdatedTs *int64

	// SetLive marks the thread live with the given stream identity.
	// ClearLive resets the live marker and nulls the stream fields; clearing
	// an already-idle thread is a no-op.
	SetLive   *ThreadStream
	ClearLive bool
}

type DeleteThread struct {
	ID int32
}
