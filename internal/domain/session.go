package domain

// RowKind identifies the role a stored row plays within a session partition.
type RowKind string

const (
	RowKindSession  RowKind = "session"
	RowKindMetadata RowKind = "metadata"
	RowKindMessage  RowKind = "message"
)

// Stored attribute names shared by readers and writers of the session table.
const (
	AttrPK        = "pk"
	AttrSK        = "sk"
	AttrIsDeleted = "is_deleted"
	AttrKind      = "kind"
	AttrMessage   = "message"
)

const sessionPKPrefix = "SESSION#"

// SessionPK returns the partition key for a raw session id.
// The id is used verbatim: no trimming, no case folding.
func SessionPK(sessionID string) string {
	return sessionPKPrefix + sessionID
}

// IsInternalAttribute reports whether name is a storage-only attribute that
// must not be returned to callers.
func IsInternalAttribute(name string) bool {
	switch name {
	case AttrPK, AttrSK, AttrIsDeleted, AttrKind:
		return true
	}
	return false
}

// Valid reports whether k is one of the known row kinds.
func (k RowKind) Valid() bool {
	switch k {
	case RowKindSession, RowKindMetadata, RowKindMessage:
		return true
	}
	return false
}

// Item is a single non-deleted row read from a session partition.
// Attributes holds every stored attribute decoded into plain Go values,
// including internal key fields. Tagged is true when Kind came from an
// explicit kind attribute rather than the row's shape.
type Item struct {
	Kind       RowKind
	Tagged     bool
	Attributes map[string]any
}

// Message returns the message body carried by the row, if any.
func (i Item) Message() (any, bool) {
	v, ok := i.Attributes[AttrMessage]
	return v, ok
}

// SessionResult is the caller-facing projection of a session partition.
type SessionResult struct {
	Session  map[string]any `json:"session"`
	Metadata map[string]any `json:"metadata"`
	Messages []any          `json:"messages"`
}
