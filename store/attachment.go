package store

// Attachment records an uploaded binary that lives in the blob store. The
// message part referencing it only carries the durable URL; this row keeps
// the ownership and bookkeeping metadata.
type Attachment struct {
	ID           int32
	UID          string
	CreatorID    int32
	Filename     string
	MimeType     string
	Size         int64
	URL          string
	ThumbnailURL string
	CreatedTs    int64
}

type FindAttachment struct {
	ID        *int32
	UID       *string
	CreatorID *int32
}

type DeleteAttachment struct {
	ID int32
}
