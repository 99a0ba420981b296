package student

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

const (
	IDPrefix = "STU"
	IDWidth  = 4

	// SequenceCounter is the store counter backing CounterAllocator.
	SequenceCounter = "studentSequence"
)

var (
	idRegex         = regexp.MustCompile(`^` + IDPrefix + `(\d{4,})$`)
	usernameIDRegex = regexp.MustCompile(`(?i)^stu[-_]?(\d+)$`)
)

// IDAllocator hands out sequential student ids. Successive Next calls never repeat a value.
type IDAllocator interface {
	Next(ctx context.Context) (string, error)
	// Observe tells the allocator that sequence n was taken by other means (eg. a username-derived id).
	Observe(n int64)
}

// FormatID formats a sequence number, eg. 7 -> "STU0007".
func FormatID(n int64) string {
	return fmt.Sprintf("%s%0*d", IDPrefix, IDWidth, n)
}

// ParseID returns the sequence number of a sequential id. ok is false for any other id.
func ParseID(id string) (n int64, ok bool) {
	m := idRegex.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IDFromUsername derives the id from usernames like "stu12", "STU-0012" or "stu_12".
func IDFromUsername(username string) (id string, n int64, ok bool) {
	m := usernameIDRegex.FindStringSubmatch(core.CleanString(username))
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return FormatID(n), n, true
}

// MaxSequence returns the highest sequence number among the roster ids, 0 if none parses.
func MaxSequence(roster []Student) int64 {
	var max int64
	for _, s := range roster {
		if n, ok := ParseID(s.ID); ok && n > max {
			max = n
		}
	}
	return max
}

// SnapshotAllocator allocates from a point-in-time roster, keeping a running counter.
// Two allocators seeded from the same roster hand out the same ids; use CounterAllocator across processes.
type SnapshotAllocator struct {
	next int64
}

var _ IDAllocator = (*SnapshotAllocator)(nil)

func NewSnapshotAllocator(roster []Student) *SnapshotAllocator {
	return &SnapshotAllocator{next: MaxSequence(roster) + 1}
}

func (a *SnapshotAllocator) Next(context.Context) (string, error) {
	id := FormatID(a.next)
	a.next++
	return id, nil
}

func (a *SnapshotAllocator) Observe(n int64) {
	if n >= a.next {
		a.next = n + 1
	}
}

// CounterAllocator reserves ids from an atomic store counter, floored at the roster max,
// so concurrent runs never allocate the same id.
type CounterAllocator struct {
	store core.DocumentStore
	floor int64
}

var _ IDAllocator = (*CounterAllocator)(nil)

func NewCounterAllocator(store core.DocumentStore, roster []Student) *CounterAllocator {
	return &CounterAllocator{store: store, floor: MaxSequence(roster)}
}

func (a *CounterAllocator) Next(ctx context.Context) (string, error) {
	n, err := a.store.Reserve(ctx, SequenceCounter, a.floor, 1)
	if err != nil {
		return "", errors.Wrap(err, "allocating student id")
	}
	return FormatID(n), nil
}

func (a *CounterAllocator) Observe(n int64) {
	if n > a.floor {
		a.floor = n
	}
}
