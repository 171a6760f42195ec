package messages

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/media"
	"github.com/vovakirdan/socialchat-server/internal/pubsub"
	"github.com/vovakirdan/socialchat-server/internal/service/follows"
	"github.com/vovakirdan/socialchat-server/internal/store"
	"github.com/vovakirdan/socialchat-server/internal/store/sqlite"
)

type push struct {
	userID int64
	event  *core.Event
}

// spyDeliverer stands in for the hub: users in online receive pushes.
type spyDeliverer struct {
	mu     sync.Mutex
	online map[int64]bool
	pushes []push
}

func (d *spyDeliverer) Deliver(_ context.Context, userID int64, ev *core.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.online[userID] {
		return false
	}
	d.pushes = append(d.pushes, push{userID: userID, event: ev})
	return true
}

func (d *spyDeliverer) pushed() []push {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]push(nil), d.pushes...)
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	svc   *Service
	st    *sqlite.SQLiteStore
	fs    afero.Fs
	live  *spyDeliverer
	bus   *recordingPublisher
	users map[string]*store.User
}

func newFixture(t *testing.T, maxBytes int64) *fixture {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fs := afero.NewMemMapFs()
	live := &spyDeliverer{online: make(map[int64]bool)}
	bus := &recordingPublisher{}

	f := &fixture{
		st:    st,
		fs:    fs,
		live:  live,
		bus:   bus,
		users: make(map[string]*store.User),
	}
	for _, name := range []string{"x", "y", "z"} {
		u, err := st.CreateUser(context.Background(), &store.User{Username: name, Name: strings.ToUpper(name), PasswordHash: "h"})
		require.NoError(t, err)
		f.users[name] = u
	}

	f.svc = New(st, media.NewAferoStore(fs, maxBytes), live, follows.New(st), nil,
		WithPublisher(bus), WithMaxAttachments(2))
	return f
}

func (f *fixture) id(name string) int64 {
	return f.users[name].ID
}

func (f *fixture) mediaFiles(t *testing.T) int {
	t.Helper()
	infos, err := afero.ReadDir(f.fs, "messages")
	if err != nil {
		return 0
	}
	return len(infos)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Send(ctx, f.id("x"), f.id("y"), text, nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	thread, err := f.st.ListThread(ctx, f.id("x"), f.id("y"))
	require.NoError(t, err)
	assert.Empty(t, thread)
	assert.Empty(t, f.bus.messages)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, f.id("x"), 999, "hi", nil)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Send(ctx, f.id("x"), f.id("x"), "hi", nil)
	assert.ErrorIs(t, err, ErrCannotMessageSelf)

	uploads := []Upload{
		{Filename: "a.png", Reader: strings.NewReader("a")},
		{Filename: "b.png", Reader: strings.NewReader("b")},
		{Filename: "c.png", Reader: strings.NewReader("c")},
	}
	_, err = f.svc.Send(ctx, f.id("x"), f.id("y"), "", uploads)
	assert.ErrorIs(t, err, ErrTooManyAttachments)
	assert.Zero(t, f.mediaFiles(t))
}

func TestSendToOfflineReceiverThenHistoryMarksSeen(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "hi", nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.Seen)
	assert.Empty(t, f.live.pushed(), "offline receiver must not get a push")

	stored, err := f.st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Seen)

	require.Len(t, f.bus.messages, 1)
	created := f.bus.messages[0]
	assert.Equal(t, pubsub.TopicMessageCreated, created.Topic)
	assert.Equal(t, store.ThreadKey(f.id("x"), f.id("y")), created.Key)
	var payload pubsub.MessageCreated
	require.NoError(t, json.Unmarshal(created.Payload, &payload))
	assert.Equal(t, msg.ID, payload.MessageID)
	assert.False(t, payload.DeliveredLive)

	// The sender reading the thread does not mark its own message seen.
	thread, err := f.svc.History(ctx, f.id("x"), f.id("y"))
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.False(t, thread[0].Seen)

	thread, err = f.svc.History(ctx, f.id("y"), f.id("x"))
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "hi", thread[0].Text)
	assert.True(t, thread[0].Seen)
}

func TestSendToOnlineReceiverPushes(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.live.online[f.id("y")] = true

	msg, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "  hello  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)

	pushes := f.live.pushed()
	require.Len(t, pushes, 1)
	assert.Equal(t, f.id("y"), pushes[0].userID)
	assert.Equal(t, core.EventNewMessage, pushes[0].event.Kind)
	assert.Equal(t, msg.ID, pushes[0].event.Message.ID)
}

func TestSendWithAttachments(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	uploads := []Upload{
		{Filename: "Photo.JPG", Reader: strings.NewReader("jpeg-bytes")},
		{Filename: "clip.bin", ContentType: "video/mp4", Reader: strings.NewReader("mp4")},
	}
	msg, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "", uploads)
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 2)

	first := msg.Attachments[0]
	assert.True(t, strings.HasPrefix(first.Key, "messages/"))
	assert.True(t, strings.HasSuffix(first.Key, ".jpg"))
	assert.Equal(t, "image/jpeg", first.ContentType)
	assert.EqualValues(t, len("jpeg-bytes"), first.Size)
	assert.Equal(t, "video/mp4", msg.Attachments[1].ContentType)

	data, err := afero.ReadFile(f.fs, first.Key)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	thread, err := f.svc.History(ctx, f.id("y"), f.id("x"))
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Len(t, thread[0].Attachments, 2)
}

func TestSendRemovesSavedMediaWhenUploadFails(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	uploads := []Upload{
		{Filename: "ok.png", Reader: strings.NewReader("tiny")},
		{Filename: "big.png", Reader: bytes.NewReader(make([]byte, 64))},
	}
	_, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "with files", uploads)
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
	assert.Zero(t, f.mediaFiles(t))

	thread, err := f.st.ListThread(ctx, f.id("x"), f.id("y"))
	require.NoError(t, err)
	assert.Empty(t, thread)
}

func TestThreadOrderingFollowsSendOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four"}
	for i, text := range texts {
		from, to := f.id("x"), f.id("y")
		if i%2 == 1 {
			from, to = to, from
		}
		_, err := f.svc.Send(ctx, from, to, text, nil)
		require.NoError(t, err)
	}

	thread, err := f.svc.History(ctx, f.id("x"), f.id("y"))
	require.NoError(t, err)
	require.Len(t, thread, len(texts))
	for i, msg := range thread {
		assert.Equal(t, texts[i], msg.Text)
	}
}

func TestMarkSeen(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "hi", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.MarkSeen(ctx, f.id("x"), msg.ID), ErrNotAuthorized)
	assert.ErrorIs(t, f.svc.MarkSeen(ctx, f.id("y"), 12345), ErrMessageNotFound)

	require.NoError(t, f.svc.MarkSeen(ctx, f.id("y"), msg.ID))
	require.NoError(t, f.svc.MarkSeen(ctx, f.id("y"), msg.ID))

	// Nothing flips it back.
	_, err = f.svc.History(ctx, f.id("x"), f.id("y"))
	require.NoError(t, err)
	stored, err := f.st.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Seen)
}

func TestDeleteMessageNotifiesOnlineCounterpart(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	keep, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "keep", nil)
	require.NoError(t, err)
	gone, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "gone", []Upload{{Filename: "a.gif", Reader: strings.NewReader("gif")}})
	require.NoError(t, err)
	require.Equal(t, 1, f.mediaFiles(t))

	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, f.id("z"), gone.ID), ErrNotAuthorized)

	f.live.online[f.id("y")] = true
	require.NoError(t, f.svc.DeleteMessage(ctx, f.id("x"), gone.ID))

	pushes := f.live.pushed()
	require.Len(t, pushes, 1)
	assert.Equal(t, f.id("y"), pushes[0].userID)
	assert.Equal(t, core.EventMessageDeleted, pushes[0].event.Kind)
	assert.Equal(t, gone.ID, pushes[0].event.MessageID)

	thread, err := f.svc.History(ctx, f.id("y"), f.id("x"))
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, keep.ID, thread[0].ID)
	assert.Zero(t, f.mediaFiles(t))

	assert.ErrorIs(t, f.svc.DeleteMessage(ctx, f.id("x"), gone.ID), ErrMessageNotFound)

	// The receiver may delete too.
	require.NoError(t, f.svc.DeleteMessage(ctx, f.id("y"), keep.ID))
}

func TestDeleteThreadClearsBothDirections(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.live.online[f.id("y")] = true

	_, err := f.svc.Send(ctx, f.id("x"), f.id("y"), "", []Upload{{Filename: "a.png", Reader: strings.NewReader("png")}})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.id("y"), f.id("x"), "reply", nil)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.id("x"), f.id("z"), "elsewhere", nil)
	require.NoError(t, err)
	pushesBefore := len(f.live.pushed())

	require.NoError(t, f.svc.DeleteThread(ctx, f.id("x"), f.id("y")))

	thread, err := f.svc.History(ctx, f.id("y"), f.id("x"))
	require.NoError(t, err)
	assert.Empty(t, thread)
	assert.Zero(t, f.mediaFiles(t))
	assert.Len(t, f.live.pushed(), pushesBefore, "thread deletion sends no live notice")

	other, err := f.svc.History(ctx, f.id("x"), f.id("z"))
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestContactsOrderingAndUnseen(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	w, err := f.st.CreateUser(ctx, &store.User{Username: "w", PasswordHash: "h"})
	require.NoError(t, err)

	// x follows y and w; z follows x.
	require.NoError(t, f.st.Follow(ctx, f.id("x"), f.id("y")))
	require.NoError(t, f.st.Follow(ctx, f.id("x"), w.ID))
	require.NoError(t, f.st.Follow(ctx, f.id("z"), f.id("x")))

	_, err = f.svc.Send(ctx, f.id("y"), f.id("x"), "from y", nil)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.id("z"), f.id("x"), "from z 1", nil)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, f.id("z"), f.id("x"), "from z 2", nil)
	require.NoError(t, err)

	list, err := f.svc.Contacts(ctx, f.id("x"))
	require.NoError(t, err)
	require.Len(t, list.Contacts, 3)

	assert.Equal(t, "z", list.Contacts[0].User.Username)
	assert.Equal(t, "from z 2", list.Contacts[0].LastMessage.Text)
	assert.Equal(t, 2, list.Contacts[0].Unseen)
	assert.Equal(t, "y", list.Contacts[1].User.Username)
	assert.Equal(t, 1, list.Contacts[1].Unseen)
	assert.Equal(t, "w", list.Contacts[2].User.Username)
	assert.Nil(t, list.Contacts[2].LastMessage)
	assert.Equal(t, map[int64]int{f.id("y"): 1, f.id("z"): 2}, list.Unseen)

	_, err = f.svc.History(ctx, f.id("x"), f.id("z"))
	require.NoError(t, err)
	list, err = f.svc.Contacts(ctx, f.id("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, list.Contacts[0].Unseen)
	assert.Equal(t, map[int64]int{f.id("y"): 1}, list.Unseen)
}
