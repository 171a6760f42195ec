package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, username string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), &store.User{Username: username, Name: username, PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}

func TestSearchUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []string{"alice", "alex", "alan", "bob", "charlie"} {
		seedUser(t, s, u)
	}

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "prefix", query: "al", expected: []string{"alan", "alex", "alice"}},
		{name: "infix", query: "li", expected: []string{"alice", "charlie"}},
		{name: "none", query: "z", expected: []string{}},
		{name: "case insensitive", query: "Bob", expected: []string{"bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchUsers(ctx, tt.query)
			if err != nil {
				t.Fatalf("SearchUsers failed: %v", err)
			}
			if len(results) != len(tt.expected) {
				t.Fatalf("expected %d results, got %d", len(tt.expected), len(results))
			}
			for i, u := range results {
				if u.Username != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, u.Username)
				}
			}
		})
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetUserByID(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFollowGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	carol := seedUser(t, s, "carol")

	if err := s.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("follow: %v", err)
	}
	// Duplicate follow is ignored.
	if err := s.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("duplicate follow: %v", err)
	}
	if err := s.Follow(ctx, carol.ID, alice.ID); err != nil {
		t.Fatalf("follow: %v", err)
	}

	following, err := s.ListFollowing(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list following: %v", err)
	}
	if len(following) != 1 || following[0].ID != bob.ID {
		t.Fatalf("expected alice to follow only bob, got %+v", following)
	}

	followers, err := s.ListFollowers(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list followers: %v", err)
	}
	if len(followers) != 1 || followers[0].ID != carol.ID {
		t.Fatalf("expected carol as only follower, got %+v", followers)
	}

	if err := s.Unfollow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	following, err = s.ListFollowing(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list following: %v", err)
	}
	if len(following) != 0 {
		t.Fatalf("expected no following after unfollow, got %d", len(following))
	}
}

func TestThreadOrderingAndAttachments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	x := seedUser(t, s, "x")
	y := seedUser(t, s, "y")

	first := &store.Message{SenderID: x.ID, ReceiverID: y.ID, Text: "first"}
	second := &store.Message{
		SenderID:   y.ID,
		ReceiverID: x.ID,
		Attachments: []store.Attachment{
			{Key: "messages/a.png", ContentType: "image/png", Size: 3},
			{Key: "messages/b.png", ContentType: "image/png", Size: 4},
		},
	}
	third := &store.Message{SenderID: x.ID, ReceiverID: y.ID, Text: "third"}

	for _, m := range []*store.Message{first, second, third} {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save message: %v", err)
		}
	}

	thread, err := s.ListThread(ctx, y.ID, x.ID)
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if len(thread) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(thread))
	}
	for i, want := range []int64{first.ID, second.ID, third.ID} {
		if thread[i].ID != want {
			t.Fatalf("message %d: expected id %d, got %d", i, want, thread[i].ID)
		}
	}
	if len(thread[1].Attachments) != 2 || thread[1].Attachments[0].Key != "messages/a.png" || thread[1].Attachments[1].Position != 1 {
		t.Fatalf("unexpected attachments: %+v", thread[1].Attachments)
	}

	last, err := s.LastMessage(ctx, x.ID, y.ID)
	if err != nil {
		t.Fatalf("last message: %v", err)
	}
	if last.ID != third.ID {
		t.Fatalf("expected last message %d, got %d", third.ID, last.ID)
	}
}

func TestSeenIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	x := seedUser(t, s, "x")
	y := seedUser(t, s, "y")

	for _, text := range []string{"a", "b"} {
		if err := s.SaveMessage(ctx, &store.Message{SenderID: x.ID, ReceiverID: y.ID, Text: text}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	reply := &store.Message{SenderID: y.ID, ReceiverID: x.ID, Text: "reply"}
	if err := s.SaveMessage(ctx, reply); err != nil {
		t.Fatalf("save: %v", err)
	}

	counts, err := s.CountUnseen(ctx, y.ID)
	if err != nil {
		t.Fatalf("count unseen: %v", err)
	}
	if counts[x.ID] != 2 {
		t.Fatalf("expected 2 unseen from x, got %d", counts[x.ID])
	}

	n, err := s.MarkThreadSeen(ctx, y.ID, x.ID)
	if err != nil {
		t.Fatalf("mark thread seen: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updated, got %d", n)
	}
	// Second pass changes nothing.
	if n, err = s.MarkThreadSeen(ctx, y.ID, x.ID); err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}

	// Messages y sent are untouched.
	got, err := s.GetMessage(ctx, reply.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Seen {
		t.Fatalf("expected reply to stay unseen")
	}

	if err := s.MarkSeen(ctx, reply.ID); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if err := s.MarkSeen(ctx, reply.ID); err != nil {
		t.Fatalf("mark seen twice: %v", err)
	}
	if err := s.MarkSeen(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMessageAndThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	x := seedUser(t, s, "x")
	y := seedUser(t, s, "y")
	z := seedUser(t, s, "z")

	withMedia := &store.Message{SenderID: x.ID, ReceiverID: y.ID, Attachments: []store.Attachment{{Key: "messages/k.jpg"}}}
	plain := &store.Message{SenderID: y.ID, ReceiverID: x.ID, Text: "plain"}
	other := &store.Message{SenderID: x.ID, ReceiverID: z.ID, Text: "other thread"}
	for _, m := range []*store.Message{withMedia, plain, other} {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if err := s.DeleteMessage(ctx, plain.ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if err := s.DeleteMessage(ctx, plain.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	attachments, err := s.DeleteThread(ctx, y.ID, x.ID)
	if err != nil {
		t.Fatalf("delete thread: %v", err)
	}
	if len(attachments) != 1 || attachments[0].Key != "messages/k.jpg" {
		t.Fatalf("unexpected attachments from deleted thread: %+v", attachments)
	}

	thread, err := s.ListThread(ctx, x.ID, y.ID)
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if len(thread) != 0 {
		t.Fatalf("expected empty thread, got %d", len(thread))
	}

	remaining, err := s.ListThread(ctx, x.ID, z.ID)
	if err != nil {
		t.Fatalf("list thread: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected other thread untouched, got %d", len(remaining))
	}
}
