package orch

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
)

func stored(in domain.NewMessage) domain.Message {
	return domain.Message{
		ID:          "m1",
		RoomID:      in.RoomID,
		UserID:      in.Sender.ID,
		User:        in.Sender,
		Content:     in.Content,
		Attachments: in.Attachments,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// TestSendMessageEmptyContent never reaches the store and answers with
// exactly one error.
func TestSendMessageEmptyContent(t *testing.T) {
	f := newFixture(t)
	sender, senderConn := f.connect(t, "u1")
	other, otherConn := f.connect(t, "u2")
	_, _ = f.orch.Join(sender, "R")
	_, _ = f.orch.Join(other, "R")
	senderConn.reset()
	otherConn.reset()

	for _, in := range []SendInput{
		{RoomID: "R", Content: ""},
		{RoomID: "R", Content: "   "},
		{RoomID: "", Content: "hello"},
	} {
		_, err := f.orch.SendMessage(context.Background(), sender, in)
		if !errors.Is(err, core.ErrInvalidPayload) {
			t.Fatalf("%+v: got %v", in, err)
		}
	}
	if n := senderConn.count(core.EventError); n != 3 {
		t.Fatalf("want one error per attempt, got %d", n)
	}
	if len(otherConn.events()) != 0 {
		t.Fatalf("nothing may be broadcast: %+v", otherConn.events())
	}
}

// TestSendMessageBroadcastsAndNotifies is the U1/U2/U3 scenario: U1 and U2
// are in R, U3 is subscribed but elsewhere with two devices.
func TestSendMessageBroadcastsAndNotifies(t *testing.T) {
	f := newFixture(t)
	u1, c1 := f.connect(t, "U1")
	u2, c2 := f.connect(t, "U2")
	u3a, c3a := f.connect(t, "U3")
	_, c3b := f.connect(t, "U3")
	_, _ = f.orch.Join(u1, "R")
	_, _ = f.orch.Join(u2, "R")
	_, _ = f.orch.Join(u3a, "other")
	for _, c := range []*fakeConn{c1, c2, c3a, c3b} {
		c.reset()
	}

	var batch []domain.NewNotification
	gomock.InOrder(
		f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in domain.NewMessage) (domain.Message, error) {
				if in.Sender.ID != "U1" || in.Content != "  hello\n\tworld " {
					t.Errorf("unexpected message %+v", in)
				}
				return stored(in), nil
			}),
		f.store.EXPECT().ListRoomSubscribers(gomock.Any(), domain.RoomID("R")).
			Return([]domain.UserID{"U1", "U2", "U3"}, nil),
		f.store.EXPECT().CreateNotifications(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, b []domain.NewNotification) error {
				batch = b
				return nil
			}),
		f.store.EXPECT().GetRoom(gomock.Any(), domain.RoomID("R")).
			Return(domain.Room{ID: "R", Name: "general"}, nil),
	)

	msg, err := f.orch.SendMessage(context.Background(), u1, SendInput{RoomID: "R", Content: "  hello\n\tworld "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "m1" {
		t.Fatalf("unexpected message %+v", msg)
	}

	if c1.count(core.EventReceiveMessage) != 1 || c2.count(core.EventReceiveMessage) != 1 {
		t.Fatal("U1 and U2 must receive the message")
	}
	if c3a.count(core.EventReceiveMessage) != 0 || c3b.count(core.EventReceiveMessage) != 0 {
		t.Fatal("U3 is not in the room")
	}
	if len(batch) != 1 || batch[0].UserID != "U3" || batch[0].MessageID != "m1" || batch[0].Type != domain.NotificationNewMessage {
		t.Fatalf("want exactly U3 notified, got %+v", batch)
	}
	if c1.count(core.EventNotification) != 0 || c2.count(core.EventNotification) != 0 {
		t.Fatal("present users must not be notified")
	}
	for _, c := range []*fakeConn{c3a, c3b} {
		evs := c.events()
		if len(evs) != 1 || evs[0].Event != core.EventNotification {
			t.Fatalf("every U3 connection needs one notification, got %+v", evs)
		}
		var p core.NotificationPayload
		if err := json.Unmarshal(evs[0].Data, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.RoomName != "general" || p.FromUserID != "U1" || p.Content != "  hello\n\tworld " || p.IsRead {
			t.Fatalf("unexpected payload %+v", p)
		}
	}
}

// TestNotificationStoreFailureKeepsBroadcast checks a failed batch insert is
// logged while the broadcast and live pushes still happen.
func TestNotificationStoreFailureKeepsBroadcast(t *testing.T) {
	f := newFixture(t)
	u1, c1 := f.connect(t, "U1")
	_, c3 := f.connect(t, "U3")
	_, _ = f.orch.Join(u1, "R")
	c1.reset()

	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in domain.NewMessage) (domain.Message, error) { return stored(in), nil })
	f.store.EXPECT().ListRoomSubscribers(gomock.Any(), gomock.Any()).Return([]domain.UserID{"U3"}, nil)
	f.store.EXPECT().CreateNotifications(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	f.store.EXPECT().GetRoom(gomock.Any(), gomock.Any()).Return(domain.Room{}, domain.ErrNotFound)

	if _, err := f.orch.SendMessage(context.Background(), u1, SendInput{RoomID: "R", Content: "hi"}); err != nil {
		t.Fatalf("send must succeed: %v", err)
	}
	if c1.count(core.EventReceiveMessage) != 1 {
		t.Fatal("broadcast must not be undone")
	}
	if c1.count(core.EventError) != 0 {
		t.Fatal("fan-out failures are not reported to the sender")
	}
	if c3.count(core.EventNotification) != 1 {
		t.Fatal("push must still be delivered")
	}
}

// TestSendMessagePersistenceFailure reports once and broadcasts nothing.
func TestSendMessagePersistenceFailure(t *testing.T) {
	f := newFixture(t)
	u1, c1 := f.connect(t, "U1")
	u2, c2 := f.connect(t, "U2")
	_, _ = f.orch.Join(u1, "R")
	_, _ = f.orch.Join(u2, "R")
	c1.reset()
	c2.reset()

	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.New("locked"))

	_, err := f.orch.SendMessage(context.Background(), u1, SendInput{RoomID: "R", Content: "hi"})
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("want persistence error, got %v", err)
	}
	if c1.count(core.EventError) != 1 || len(c1.events()) != 1 {
		t.Fatalf("sender must get exactly one error: %+v", c1.events())
	}
	if len(c2.events()) != 0 {
		t.Fatal("nothing may be broadcast")
	}
}

// TestSendMessageAttachments uploads before persisting.
func TestSendMessageAttachments(t *testing.T) {
	f := newFixture(t)
	u1, c1 := f.connect(t, "U1")
	_, _ = f.orch.Join(u1, "R")
	c1.reset()

	att := domain.Attachment{ID: "a1", URL: "http://x/uploads/a1.png", FileName: "cat.png", MimeType: "image/png", Size: 3}
	gomock.InOrder(
		f.up.EXPECT().Upload(gomock.Any(), domain.RoomID("R"), domain.Upload{FileName: "cat.png", Data: []byte("png")}).Return(att, nil),
		f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in domain.NewMessage) (domain.Message, error) {
				if len(in.Attachments) != 1 || in.Attachments[0] != att {
					t.Errorf("attachments not passed: %+v", in.Attachments)
				}
				return stored(in), nil
			}),
	)
	f.store.EXPECT().ListRoomSubscribers(gomock.Any(), gomock.Any()).Return(nil, nil)

	msg, err := f.orch.SendMessage(context.Background(), u1, SendInput{
		RoomID:      "R",
		Attachments: []domain.Upload{{FileName: "cat.png", Data: []byte("png")}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(msg.Attachments) != 1 || c1.count(core.EventReceiveMessage) != 1 {
		t.Fatalf("unexpected result %+v", msg)
	}
}

// TestSendMessagePersistenceFailureRemovesUploads deletes files that no
// message owns.
func TestSendMessagePersistenceFailureRemovesUploads(t *testing.T) {
	f := newFixture(t)
	u1, c1 := f.connect(t, "U1")
	a1 := domain.Attachment{ID: "a1", URL: "http://x/uploads/a1"}
	a2 := domain.Attachment{ID: "a2", URL: "http://x/uploads/a2"}
	gomock.InOrder(
		f.up.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(a1, nil),
		f.up.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(a2, nil),
		f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(domain.Message{}, errors.New("locked")),
		f.up.EXPECT().Remove(gomock.Any(), a1).Return(nil),
		f.up.EXPECT().Remove(gomock.Any(), a2).Return(errors.New("gone")),
	)

	_, err := f.orch.SendMessage(context.Background(), u1, SendInput{
		RoomID:      "R",
		Attachments: []domain.Upload{{FileName: "a", Data: []byte("a")}, {FileName: "b", Data: []byte("b")}},
	})
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("got %v", err)
	}
	if c1.count(core.EventError) != 1 {
		t.Fatal("sender must get one error")
	}
}

// TestSendMessagePartialUploadRemovesStored cleans up when a later upload fails.
func TestSendMessagePartialUploadRemovesStored(t *testing.T) {
	f := newFixture(t)
	u1, _ := f.connect(t, "U1")
	a1 := domain.Attachment{ID: "a1", URL: "http://x/uploads/a1"}
	gomock.InOrder(
		f.up.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(a1, nil),
		f.up.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Attachment{}, errors.New("too big")),
		f.up.EXPECT().Remove(gomock.Any(), a1).Return(nil),
	)
	_, err := f.orch.SendMessage(context.Background(), u1, SendInput{
		RoomID:      "R",
		Attachments: []domain.Upload{{FileName: "a", Data: []byte("a")}, {FileName: "b", Data: []byte("b")}},
	})
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("got %v", err)
	}
}

// TestSecondDeviceJoinGetsPresenceOnly sends the member list to the joining
// connection without a room broadcast.
func TestSecondDeviceJoinGetsPresenceOnly(t *testing.T) {
	f := newFixture(t)
	a1, c1 := f.connect(t, "U1")
	a2, c2 := f.connect(t, "U1")
	b, cb := f.connect(t, "U2")
	_, _ = f.orch.Join(a1, "R")
	_, _ = f.orch.Join(b, "R")
	for _, c := range []*fakeConn{c1, c2, cb} {
		c.reset()
	}

	snap, err := f.orch.Join(a2, "R")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if snap.Count() != 2 {
		t.Fatalf("want 2 members, got %d", snap.Count())
	}
	evs := c2.events()
	if len(evs) != 1 || evs[0].Event != core.EventRoomUsersUpdated {
		t.Fatalf("joining device needs one presence list, got %+v", evs)
	}
	var p core.PresencePayload
	if err := json.Unmarshal(evs[0].Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Count != 2 || p.RoomID != "R" {
		t.Fatalf("unexpected presence %+v", p)
	}
	if len(c1.events()) != 0 || len(cb.events()) != 0 {
		t.Fatal("no room broadcast for an unchanged presence")
	}
}

// TestSendMessageUploadFailure persists nothing.
func TestSendMessageUploadFailure(t *testing.T) {
	f := newFixture(t)
	u1, c1 := f.connect(t, "U1")
	f.up.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Attachment{}, errors.New("too big"))

	_, err := f.orch.SendMessage(context.Background(), u1, SendInput{
		RoomID:      "R",
		Attachments: []domain.Upload{{FileName: "x", Data: []byte("x")}},
	})
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("got %v", err)
	}
	if c1.count(core.EventError) != 1 {
		t.Fatal("sender must get one error")
	}
}

// TestJoinEmptyRoomID answers with an error event.
func TestJoinEmptyRoomID(t *testing.T) {
	f := newFixture(t)
	s, c := f.connect(t, "U1")
	if _, err := f.orch.Join(s, ""); !errors.Is(err, core.ErrInvalidPayload) {
		t.Fatalf("got %v", err)
	}
	if c.count(core.EventError) != 1 {
		t.Fatal("want one error event")
	}
	if _, ok := f.orch.Leave(s, ""); ok {
		t.Fatal("leave without room must be a no-op")
	}
}

// TestDisconnectDuringSend drops pushes to the gone connection silently.
func TestDisconnectDuringSend(t *testing.T) {
	f := newFixture(t)
	u1, _ := f.connect(t, "U1")
	u2, _ := f.connect(t, "U2")
	_, _ = f.orch.Join(u1, "R")
	_, _ = f.orch.Join(u2, "R")

	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in domain.NewMessage) (domain.Message, error) {
			f.orch.Disconnect(u2.ID())
			return stored(in), nil
		})
	f.store.EXPECT().ListRoomSubscribers(gomock.Any(), gomock.Any()).Return([]domain.UserID{"U2"}, nil)
	f.store.EXPECT().CreateNotifications(gomock.Any(), gomock.Any()).Return(nil)
	f.store.EXPECT().GetRoom(gomock.Any(), gomock.Any()).Return(domain.Room{ID: "R", Name: "general"}, nil)

	if _, err := f.orch.SendMessage(context.Background(), u1, SendInput{RoomID: "R", Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if f.orch.Rooms.MemberCount("R") != 1 {
		t.Fatal("U2 must be gone")
	}
}
