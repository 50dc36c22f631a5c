package model

import (
	"time"

	"github.com/md-rashed-zaman/advisoryoffice/libs/apperr"
)

// EntryStatus is the closed set of waiting-room states. The zero value is not a valid
// status.
type EntryStatus uint8

const (
	EntryWaiting EntryStatus = iota + 1
	EntryAdmitted
	EntryRejected
)

func (s EntryStatus) String() string {
	switch s {
	case EntryWaiting:
		return "waiting"
	case EntryAdmitted:
		return "admitted"
	case EntryRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (s EntryStatus) Terminal() bool { return s == EntryAdmitted || s == EntryRejected }

func ParseEntryStatus(raw string) (EntryStatus, bool) {
	switch raw {
	case "waiting":
		return EntryWaiting, true
	case "admitted":
		return EntryAdmitted, true
	case "rejected":
		return EntryRejected, true
	default:
		return 0, false
	}
}

// Resolution is a host decision on a waiting entry. Admit and Reject are the only
// values other packages can obtain, so waiting -> admitted and waiting -> rejected are
// the only transitions that can be expressed.
type Resolution struct {
	target EntryStatus
}

var (
	Admit  = Resolution{target: EntryAdmitted}
	Reject = Resolution{target: EntryRejected}
)

// Target is the status an entry ends up in, or 0 for the zero Resolution.
func (r Resolution) Target() EntryStatus { return r.target }

func (r Resolution) String() string {
	switch r.target {
	case EntryAdmitted:
		return "admit"
	case EntryRejected:
		return "reject"
	default:
		return "invalid"
	}
}

type WaitingEntry struct {
	ID              string
	MeetingID       string
	UserName        string
	UserEmail       string
	Status          EntryStatus
	JoinRequestedAt time.Time
	ResolvedAt      *time.Time
}

// Resolve applies r to a waiting entry. Terminal entries fail with
// apperr.AlreadyResolved and are returned unchanged.
func (e WaitingEntry) Resolve(r Resolution, at time.Time) (WaitingEntry, error) {
	if r.target == 0 {
		return e, apperr.Validation("invalid resolution")
	}
	if e.Status != EntryWaiting {
		return e, apperr.AlreadyResolved(e.ID, e.Status.String())
	}
	e.Status = r.target
	e.ResolvedAt = &at
	return e, nil
}
