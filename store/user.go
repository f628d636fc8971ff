package store

type User struct {
	ID        int32
	UID       string
	Username  string
	Nickname  string
	CreatedTs int64
	UpdatedTs int64
	RowStatus RowStatus
}

type FindUser struct {
	ID       *int32
	UID      *string
	Username *string
}

type UpdateUser struct {
	ID       int32
	Nickname *string
}
