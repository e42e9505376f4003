// Package fanout applies thread mutations to the canonical thread record and
// to every affected participant's index entry as one atomic change set.
//
// A ChangeSet can only be built inside this package, so no caller can write
// an index entry on its own. Store adapters implement Committer and read the
// writes back through ChangeSet.Writes.
package fanout

import (
	"context"
	"fmt"
	"time"
)

const (
	ThreadsCollection     = "threads"
	UserThreadsCollection = "userThreads"
	IndexSubcollection    = "threads"
	MessagesSubcollection = "messages"
)

type DocKind int

const (
	ThreadDoc DocKind = iota + 1
	IndexDoc
)

// DocRef addresses one document touched by a change set.
type DocRef struct {
	Kind     DocKind
	ThreadID string
	UserID   string // IndexDoc only
}

func ThreadRef(threadID string) DocRef {
	return DocRef{Kind: ThreadDoc, ThreadID: threadID}
}

func IndexRef(userID, threadID string) DocRef {
	return DocRef{Kind: IndexDoc, ThreadID: threadID, UserID: userID}
}

// Path is the slash-separated document path in the backing store.
func (r DocRef) Path() string {
	switch r.Kind {
	case ThreadDoc:
		return ThreadsCollection + "/" + r.ThreadID
	case IndexDoc:
		return UserThreadsCollection + "/" + r.UserID + "/" + IndexSubcollection + "/" + r.ThreadID
	}
	return ""
}

func (r DocRef) String() string {
	return r.Path()
}

type OpKind int

const (
	// OpCreate writes a whole document and fails if it already exists.
	OpCreate OpKind = iota + 1
	// OpUpdate changes individual fields and fails if the document is missing.
	OpUpdate
	// OpDelete removes the document. Deleting a missing document succeeds.
	OpDelete
)

func (o OpKind) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Increment is a field value that adds N server-side instead of
// overwriting. Concurrent increments from different senders never lose
// updates.
type Increment struct {
	N int
}

// IfNewer wraps a field value that applies only when the document's stored
// lastMessage is absent or not newer than At. A summary committed late
// never replaces a more recent one.
type IfNewer struct {
	At    time.Time
	Value any
}

// Applies reports whether a write guarded at At may replace a summary
// whose message was created at stored. A zero stored time always loses.
func (n IfNewer) Applies(stored time.Time) bool {
	return stored.IsZero() || !stored.After(n.At)
}

// Conditional reports whether any of the write's fields is guarded by
// IfNewer, so the committer must read the document first.
func (w Write) Conditional() bool {
	for _, f := range w.Fields {
		if _, ok := f.Value.(IfNewer); ok {
			return true
		}
	}
	return false
}

// Field is one field update. Path addresses nested map keys, for example
// {"unreadCount", userID}.
type Field struct {
	Path  []string
	Value any
}

type Write struct {
	Ref    DocRef
	Op     OpKind
	Data   any     // OpCreate: *entity.Thread or *entity.IndexEntry
	Fields []Field // OpUpdate
}

// ChangeSet is an ordered list of writes that must commit together.
type ChangeSet struct {
	label  string
	writes []Write
}

// Label names the operation that produced the set, for logs and errors.
func (cs *ChangeSet) Label() string {
	return cs.label
}

func (cs *ChangeSet) Len() int {
	return len(cs.writes)
}

// Writes returns a copy of the writes in the set.
func (cs *ChangeSet) Writes() []Write {
	return append([]Write(nil), cs.writes...)
}

func (cs *ChangeSet) add(w Write) {
	cs.writes = append(cs.writes, w)
}

// Committer applies a change set all-or-nothing.
type Committer interface {
	Commit(ctx context.Context, cs *ChangeSet) error
}
