package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Chat/internal/domain"
)

type nopConn struct{}

func (nopConn) TrySend(Frame) error { return nil }
func (nopConn) Close()              {}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) EmitPresence(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func newSession(sid, uid string) *Session {
	return NewSession(SessionID(sid), domain.User{ID: domain.UserID(uid), Username: "name-" + uid}, nopConn{})
}

func memberIDs(s Snapshot) []domain.UserID {
	out := make([]domain.UserID, 0, len(s.Members))
	for m := range s.All() {
		out = append(out, m.ID)
	}
	return out
}

// TestJoinIdempotent checks a repeated join broadcasts once and keeps one entry.
func TestJoinIdempotent(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	s := newSession("s1", "alice")

	for range 3 {
		snap, _, err := tr.Join("r", s)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if snap.Count() != 1 {
			t.Fatalf("want 1 member, got %d", snap.Count())
		}
	}
	if n := len(rec.all()); n != 1 {
		t.Fatalf("want one presence broadcast, got %d", n)
	}
}

// TestOneEntryPerUser joins the same user through several connections.
func TestOneEntryPerUser(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	a1, a2, a3 := newSession("a1", "alice"), newSession("a2", "alice"), newSession("a3", "alice")
	for _, s := range []*Session{a1, a2, a3} {
		if _, _, err := tr.Join("r", s); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	snap := tr.Snapshot("r")
	if snap.Count() != 1 || len(snap.Targets) != 3 {
		t.Fatalf("want 1 member and 3 targets, got %d/%d", snap.Count(), len(snap.Targets))
	}
	if n := len(rec.all()); n != 1 {
		t.Fatalf("second device must not broadcast, got %d broadcasts", n)
	}

	// The user stays until the last connection leaves.
	if _, ok := tr.Leave("r", a1); !ok {
		t.Fatal("room must survive while other connections remain")
	}
	tr.Purge(a2)
	if tr.MemberCount("r") != 1 {
		t.Fatalf("alice must still be present")
	}
	if n := len(rec.all()); n != 1 {
		t.Fatalf("no presence change yet, got %d broadcasts", n)
	}
}

// TestDisconnectOfOneUserKeepsOther is the A/B disconnect property.
func TestDisconnectOfOneUserKeepsOther(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	a, b := newSession("a", "A"), newSession("b", "B")
	_, _, _ = tr.Join("r", a)
	_, _, _ = tr.Join("r", b)

	tr.Purge(a)

	snap := tr.Snapshot("r")
	ids := memberIDs(snap)
	if len(ids) != 1 || ids[0] != "B" {
		t.Fatalf("want only B, got %v", ids)
	}
	snaps := rec.all()
	last := snaps[len(snaps)-1]
	if got := memberIDs(last); len(got) != 1 || got[0] != "B" {
		t.Fatalf("last presence must list only B, got %v", got)
	}
	if len(last.Targets) != 1 || last.Targets[0] != b {
		t.Fatalf("presence must reach B only")
	}
}

// TestLeaveLastMemberDeletesRoom expects no broadcast from an emptied room.
func TestLeaveLastMemberDeletesRoom(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	a := newSession("a", "A")
	_, _, _ = tr.Join("r", a)

	if _, ok := tr.Leave("r", a); ok {
		t.Fatal("leave of last member must report the room gone")
	}
	if n := len(rec.all()); n != 1 {
		t.Fatalf("want only the join broadcast, got %d", n)
	}
	if len(tr.List()) != 0 {
		t.Fatalf("room must be deleted: %+v", tr.List())
	}
	if snap := tr.Snapshot("r"); snap.Count() != 0 {
		t.Fatalf("empty room snapshot must be empty")
	}

	// Non-member leave is a no-op.
	if _, ok := tr.Leave("r", a); ok {
		t.Fatal("second leave must be a no-op")
	}
	// The room is recreated on the next join.
	if snap, _, err := tr.Join("r", a); err != nil || snap.Count() != 1 {
		t.Fatalf("rejoin: %v %d", err, snap.Count())
	}
}

// TestJoinErrors covers the empty room id and a session already purged.
func TestJoinErrors(t *testing.T) {
	tr := NewTracker(nil)
	s := newSession("s", "u")
	if _, _, err := tr.Join("", s); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("empty room: got %v", err)
	}
	tr.Purge(s)
	tr.Purge(s)
	if _, _, err := tr.Join("r", s); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closed session: got %v", err)
	}
	if !s.Closed() {
		t.Fatal("session must be marked closed")
	}
}

// TestSnapshotIsCopy checks snapshots are ordered by join and detached.
func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(nil)
	for i, uid := range []string{"c", "a", "b"} {
		_, _, _ = tr.Join("r", newSession(fmt.Sprintf("s%d", i), uid))
	}
	snap := tr.Snapshot("r")
	ids := memberIDs(snap)
	if fmt.Sprint(ids) != "[c a b]" {
		t.Fatalf("want join order, got %v", ids)
	}
	snap.Members[0].Username = "mutated"
	if tr.Snapshot("r").Members[0].Username == "mutated" {
		t.Fatal("snapshot must not alias tracker state")
	}
	// The iterator can be restarted.
	n := 0
	for range snap.All() {
		n++
	}
	for range snap.All() {
		n++
	}
	if n != 6 {
		t.Fatalf("want 6 iterations, got %d", n)
	}
}

// TestPresenceOrder checks broadcasts of one room follow mutation order and
// every broadcast reflects a state that existed.
func TestPresenceOrder(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	sessions := make([]*Session, 5)
	for i := range sessions {
		sessions[i] = newSession(fmt.Sprintf("s%d", i), fmt.Sprintf("u%d", i))
		_, _, _ = tr.Join("r", sessions[i])
	}
	for i := range sessions[:4] {
		tr.Leave("r", sessions[i])
	}
	counts := []int{}
	for _, s := range rec.all() {
		counts = append(counts, s.Count())
	}
	if fmt.Sprint(counts) != "[1 2 3 4 5 4 3 2 1]" {
		t.Fatalf("presence out of order: %v", counts)
	}
}

// TestConcurrentJoinLeave converges to the net effect of all operations.
func TestConcurrentJoinLeave(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	const n = 50
	rooms := []domain.RoomID{"r1", "r2", "r3"}

	var wg sync.WaitGroup
	stay := make([]*Session, n)
	for i := range n {
		stay[i] = newSession(fmt.Sprintf("stay%d", i), fmt.Sprintf("stay%d", i))
		wg.Add(2)
		go func(s *Session) {
			defer wg.Done()
			for _, r := range rooms {
				_, _, _ = tr.Join(r, s)
			}
		}(stay[i])
		go func(i int) {
			defer wg.Done()
			s := newSession(fmt.Sprintf("gone%d", i), fmt.Sprintf("gone%d", i))
			for _, r := range rooms {
				_, _, _ = tr.Join(r, s)
			}
			if i%2 == 0 {
				tr.Purge(s)
				return
			}
			for _, r := range rooms {
				tr.Leave(r, s)
			}
		}(i)
	}
	wg.Wait()

	for _, r := range rooms {
		snap := tr.Snapshot(r)
		if snap.Count() != n {
			t.Fatalf("%s: want %d members, got %d", r, n, snap.Count())
		}
		for m := range snap.All() {
			if m.ID[:4] != "stay" {
				t.Fatalf("%s: leftover member %s", r, m.ID)
			}
		}
	}
	for _, s := range stay {
		if len(s.Rooms()) != len(rooms) {
			t.Fatalf("%s joined %v", s.ID(), s.Rooms())
		}
	}
}

// TestPurgeConcurrentWithJoin never leaves a purged session in a room.
func TestPurgeConcurrentWithJoin(t *testing.T) {
	tr := NewTracker(nil)
	for i := range 100 {
		s := newSession(fmt.Sprintf("s%d", i), "u")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _, _, _ = tr.Join("r", s) }()
		go func() { defer wg.Done(); tr.Purge(s) }()
		wg.Wait()
		if tr.MemberCount("r") != 0 {
			t.Fatalf("iteration %d: purged session still present", i)
		}
	}
}

// TestJoinReportsChange is true only for the join that added the user.
func TestJoinReportsChange(t *testing.T) {
	tr := NewTracker(nil)
	a1, a2 := newSession("a1", "alice"), newSession("a2", "alice")
	if _, changed, _ := tr.Join("r", a1); !changed {
		t.Fatal("first connection must change presence")
	}
	if _, changed, _ := tr.Join("r", a1); changed {
		t.Fatal("rejoin must not change presence")
	}
	snap, changed, _ := tr.Join("r", a2)
	if changed {
		t.Fatal("second device must not change presence")
	}
	if snap.Count() != 1 || len(snap.Targets) != 2 {
		t.Fatalf("unexpected snapshot %d/%d", snap.Count(), len(snap.Targets))
	}
}

// TestListOrdered reports live rooms sorted by id.
func TestListOrdered(t *testing.T) {
	tr := NewTracker(nil)
	for i, r := range []domain.RoomID{"c", "a", "b"} {
		_, _, _ = tr.Join(r, newSession(fmt.Sprintf("s%d", i), "u"))
	}
	got := tr.List()
	if fmt.Sprint(got) != "[{a 1} {b 1} {c 1}]" {
		t.Fatalf("got %v", got)
	}
}
