package history

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/chatrelay/internal/message"
	"github.com/comigor/chatrelay/internal/storage"
)

const key = "chatHistory"

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func msg(i int) message.Message {
	sender := message.SenderUser
	if i%2 == 1 {
		sender = message.SenderBot
	}
	return message.New(sender, t0.Add(time.Duration(i)*time.Minute), message.Text(fmt.Sprintf("mensaje %d", i)))
}

func fill(t *testing.T, s *Store, n int) []message.Message {
	t.Helper()
	var out []message.Message
	for i := 0; i < n; i++ {
		m := msg(i)
		require.NoError(t, s.Append(m))
		out = append(out, m)
	}
	return out
}

func TestAppendLoadReplayRoundTrip(t *testing.T) {
	kv := storage.NewMemory()
	s := New(kv, key)
	want := fill(t, s, 3)
	require.NoError(t, s.Append(message.New(message.SenderBot, t0.Add(time.Hour).Add(123*time.Nanosecond),
		message.Text("Mira"), message.Link("https://x.test", "esto"))))
	want = append(want, s.Messages()[3])

	reloaded := New(kv, key)
	require.NoError(t, reloaded.Load())

	var replayed []message.Message
	reloaded.Replay(func(m message.Message) { replayed = append(replayed, m) })
	require.Equal(t, want, replayed)
}

func TestRoundTripThroughSQLite(t *testing.T) {
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	want := fill(t, New(db, key), 5)

	reloaded := New(db, key)
	require.NoError(t, reloaded.Load())
	require.Equal(t, want, reloaded.Messages())
}

func TestLoadAbsentKeyIsEmpty(t *testing.T) {
	s := New(storage.NewMemory(), key)
	require.NoError(t, s.Load())
	require.Zero(t, s.Len())
}

// TestLoadCorruptJSONClearsKey: storage holding "{not json" loads as an empty
// history and the key is removed.
func TestLoadCorruptJSONClearsKey(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(key, "{not json"))

	s := New(kv, key)
	err := s.Load()
	require.ErrorIs(t, err, ErrCorrupt)
	require.Zero(t, s.Len())

	_, ok, _ := kv.Get(key)
	require.False(t, ok)
}

func TestLoadInvalidEntryDiscardsEverything(t *testing.T) {
	cases := map[string]string{
		"missing sender":    `[{"sender":"user","timestamp":"2026-10-16T09:00:00Z","content":[{"type":"text","content":"ok"}]},{"timestamp":"2026-10-16T09:01:00Z","content":[{"type":"text","content":"x"}]}]`,
		"unknown sender":    `[{"sender":"admin","timestamp":"2026-10-16T09:00:00Z","content":[{"type":"text","content":"x"}]}]`,
		"bad timestamp":     `[{"sender":"user","timestamp":"ayer","content":[{"type":"text","content":"x"}]}]`,
		"missing timestamp": `[{"sender":"user","content":[{"type":"text","content":"x"}]}]`,
		"null content":      `[{"sender":"bot","timestamp":"2026-10-16T09:00:00Z","content":null}]`,
		"empty content":     `[{"sender":"bot","timestamp":"2026-10-16T09:00:00Z","content":[]}]`,
		"unknown segment":   `[{"sender":"bot","timestamp":"2026-10-16T09:00:00Z","content":[{"type":"video"}]}]`,
		"null entry":        `[null]`,
		"object not list":   `{"sender":"bot"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			kv := storage.NewMemory()
			require.NoError(t, kv.Set(key, payload))

			s := New(kv, key)
			s.messages = []message.Message{msg(0)}
			require.ErrorIs(t, s.Load(), ErrCorrupt)
			require.Zero(t, s.Len())

			_, ok, _ := kv.Get(key)
			require.False(t, ok)
		})
	}
}

func TestLoadUpgradesTextEntries(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(key, `[{"text":"Hola **amigo**","sender":"bot","timestamp":"2026-10-16T09:00:00.000Z"}]`))

	s := New(kv, key)
	require.NoError(t, s.Load())
	require.Equal(t, []message.Message{
		message.New(message.SenderBot, t0, message.Text("Hola **amigo**")),
	}, s.Messages())
}

type failingStorage struct {
	storage.Storage
	setErr    error
	getErr    error
	removeErr error
}

func (f failingStorage) Get(k string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Storage.Get(k)
}

func (f failingStorage) Set(k, v string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Storage.Set(k, v)
}

func (f failingStorage) Remove(k string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Storage.Remove(k)
}

func TestAppendPersistFailureKeepsMemory(t *testing.T) {
	s := New(storage.WithQuota(storage.NewMemory(), 16), key)
	err := s.Append(msg(0))
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)
	require.Equal(t, 1, s.Len())
	require.Equal(t, []message.Message{msg(0)}, s.Messages())
}

func TestLoadReadFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	s := New(failingStorage{Storage: storage.NewMemory(), getErr: boom}, key)
	require.ErrorIs(t, s.Load(), boom)
	require.Zero(t, s.Len())
}

func TestLoadCorruptAndRemoveFailure(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(key, "[oops"))
	boom := errors.New("read-only")

	s := New(failingStorage{Storage: kv, removeErr: boom}, key)
	err := s.Load()
	require.ErrorIs(t, err, ErrCorrupt)
	require.ErrorIs(t, err, boom)
	require.Zero(t, s.Len())
}

func TestRecentWindow(t *testing.T) {
	s := New(storage.NewMemory(), key)
	all := fill(t, s, 15)

	require.Equal(t, all[5:], s.RecentWindow(10))
	require.Equal(t, all[5:], s.RecentWindow(0))
	require.Equal(t, 15, s.Len(), "window must not truncate the log")

	small := New(storage.NewMemory(), key)
	three := fill(t, small, 3)
	require.Equal(t, three, small.RecentWindow(10))

	require.Empty(t, New(storage.NewMemory(), key).RecentWindow(10))
}

func TestRecentWindowIsACopy(t *testing.T) {
	s := New(storage.NewMemory(), key)
	fill(t, s, 2)
	w := s.RecentWindow(10)
	w[0].Sender = "mutated"
	require.Equal(t, message.SenderUser, s.Messages()[0].Sender)
}
