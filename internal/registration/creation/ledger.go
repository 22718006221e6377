package creation

import (
	"fmt"
	"strings"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/registration/models"
)

// Entry is one successful write recorded for compensation.
type Entry struct {
	Kind models.EntityKind
	ID   string
}

// Ledger is the per-attempt list of successful writes, in write order.
type Ledger struct {
	entries []Entry
}

func (l *Ledger) Append(kind models.EntityKind, id string) {
	l.entries = append(l.entries, Entry{Kind: kind, ID: id})
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy in write order.
func (l *Ledger) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Reversed returns a copy in compensation order.
func (l *Ledger) Reversed() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// String is the snapshot appended to the session's error messages.
func (l *Ledger) String() string {
	if len(l.entries) == 0 {
		return "ledger: empty"
	}
	parts := make([]string, len(l.entries))
	for i, e := range l.entries {
		parts[i] = fmt.Sprintf("%s=%s", e.Kind, e.ID)
	}
	return "ledger: " + strings.Join(parts, ", ")
}

// Orphan is a record whose compensating delete failed. It is logged and
// reported, never retried.
type Orphan struct {
	Kind models.EntityKind
	ID   string
	Err  error
}

func (o Orphan) String() string {
	return fmt.Sprintf("%s %s could not be removed: %v", o.Kind, o.ID, o.Err)
}
