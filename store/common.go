package store

// RowStatus is the visibility status of a row.
// Soft-deleted rows are kept as ARCHIVED so edit/retry truncation is
// recoverable.
type RowStatus string

const (
	RowStatusNormal   RowStatus = "NORMAL"
	RowStatusArchived RowStatus = "ARCHIVED"
)

func (s RowStatus) String() string {
	return string(s)
}
