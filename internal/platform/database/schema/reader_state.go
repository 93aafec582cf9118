package schema

// ReaderStateTable represents the 'reader_state' table
type ReaderStateTable struct {
	Table     string
	Key       string
	Snapshot  string
	ExpiresAt string
	UpdatedAt string
}

// ReaderState is the schema definition for reader_state
var ReaderState = ReaderStateTable{
	Table:     "reader_state",
	Key:       "state_key",
	Snapshot:  "snapshot",
	ExpiresAt: "expires_at",
	UpdatedAt: "updated_at",
}

func (t ReaderStateTable) Columns() []string {
	return []string{t.Key, t.Snapshot, t.ExpiresAt, t.UpdatedAt}
}
