package interfaces

import "time"

// TokenIdentifier identifies an issued enrollment token.
type TokenIdentifier struct {
	Subject       string    `json:"subject"`
	UserGroup     string    `json:"userGroup"`
	IssueDateTime time.Time `json:"issueDateTime"`
}

// Equal compares all fields exactly. Timestamps are compared at second
// precision, the precision tokens are issued with.
func (t TokenIdentifier) Equal(other TokenIdentifier) bool {
	return t.Subject == other.Subject &&
		t.UserGroup == other.UserGroup &&
		t.IssueDateTime.Unix() == other.IssueDateTime.Unix()
}

// Supersedes reports whether t has the same subject and group as other and
// was issued at the same time or later.
func (t TokenIdentifier) Supersedes(other TokenIdentifier) bool {
	return t.Subject == other.Subject &&
		t.UserGroup == other.UserGroup &&
		t.IssueDateTime.Unix() >= other.IssueDateTime.Unix()
}

// BlocklistEntryMetadata records who created a block rule and why.
type BlocklistEntryMetadata struct {
	Note             string    `json:"note"`
	Issuer           string    `json:"issuer"`
	CreationDateTime time.Time `json:"creationDateTime"`
}

// BlocklistEntry blocks every token whose identifier is superseded by Target.
type BlocklistEntry struct {
	ID       int64                  `json:"id"`
	Target   TokenIdentifier        `json:"target"`
	Metadata BlocklistEntryMetadata `json:"metadata"`
}

// Blocks reports whether the entry blocks token.
func (e BlocklistEntry) Blocks(token TokenIdentifier) bool {
	return e.Target.Supersedes(token)
}

// Blocklist stores administrative block rules for enrollment tokens.
// Implementations are safe for concurrent use.
type Blocklist interface {
	// Size returns the number of entries.
	Size() (int, error)

	// AllEntries returns every entry ordered by id.
	AllEntries() ([]BlocklistEntry, error)

	// AllEntriesMatching returns the entries that block token.
	AllEntriesMatching(token TokenIdentifier) ([]BlocklistEntry, error)

	// EntryByID returns ErrBlocklistEntryNotFound if no entry has the id.
	EntryByID(id int64) (BlocklistEntry, error)

	// Add stores a new entry and returns its id.
	Add(target TokenIdentifier, metadata BlocklistEntryMetadata) (int64, error)

	// RemoveByID deletes the entry and returns it.
	RemoveByID(id int64) (BlocklistEntry, error)
}
