package persist

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkraft/scrumdeck/internal/auth"
	"github.com/mkraft/scrumdeck/internal/room"
	"github.com/mkraft/scrumdeck/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	fs, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	return NewService(NewRepository(fs, "rooms"), auth.NewBcryptHasher())
}

func liveRoom(code string) *room.Room {
	r := room.NewRoom(code)
	r.Join("c1", "Alice")
	r.Join("c2", "Bob")
	r.SetVote("Alice", "8")
	r.SetTopic("PROJ-42", "")
	return r
}

func TestSaveFromLiveCreates(t *testing.T) {
	svc := newTestService(t)
	r := liveRoom("alpha")

	require.NoError(t, svc.SaveFromLive(r, "Alice"))

	s, err := svc.Load("alpha")
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, "alpha", s.Code)
	assert.Equal(t, s.CreatedAt, s.UpdatedAt)
	assert.Equal(t, "PROJ-42", s.TopicLabel)
	require.Len(t, s.Participants, 2)
	assert.Equal(t, "Alice", s.Participants[0].Name)
	assert.Equal(t, "8", s.Participants[0].Vote)
	assert.True(t, s.Participants[0].Host)
	require.Len(t, s.History, 1)
	assert.Equal(t, "sync", s.History[0].Action)
	assert.Equal(t, "Alice", s.History[0].Actor)
}

func TestSaveFromLiveMonotonicUpdatedAt(t *testing.T) {
	svc := newTestService(t)
	// Frozen clock: every write sees the same wall time, forcing the
	// nanosecond bump path.
	frozen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return frozen }

	r := liveRoom("alpha")
	require.NoError(t, svc.SaveFromLive(r, ""))
	first, err := svc.Load("alpha")
	require.NoError(t, err)

	require.NoError(t, svc.SaveFromLive(r, ""))
	second, err := svc.Load("alpha")
	require.NoError(t, err)

	require.NoError(t, svc.SaveFromLive(r, ""))
	third, err := svc.Load("alpha")
	require.NoError(t, err)

	assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "second write must advance updatedAt")
	assert.True(t, third.UpdatedAt.After(second.UpdatedAt), "third write must advance updatedAt")
	assert.Equal(t, first.CreatedAt, third.CreatedAt, "createdAt never regresses")
}

func TestSaveFromLivePreservesPassword(t *testing.T) {
	svc := newTestService(t)
	r := liveRoom("alpha")

	require.NoError(t, svc.SetPassword("alpha", "hunter2"))
	before, err := svc.Load("alpha")
	require.NoError(t, err)
	require.NotEmpty(t, before.PasswordHash)

	require.NoError(t, svc.SaveFromLive(r, "Alice"))

	after, err := svc.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	require.Len(t, after.Participants, 2, "participants replaced from live state")
}

// gatedStore stalls a single Get so another writer can be raced
// against the stalled load/save window.
type gatedStore struct {
	store.ObjectStore
	mu   sync.Mutex
	gate func()
}

func (g *gatedStore) setGate(fn func()) {
	g.mu.Lock()
	g.gate = fn
	g.mu.Unlock()
}

func (g *gatedStore) Get(path string) ([]byte, error) {
	g.mu.Lock()
	fn := g.gate
	g.gate = nil
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
	return g.ObjectStore.Get(path)
}

func TestSetPasswordSerializedAgainstSync(t *testing.T) {
	fs, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })

	gated := &gatedStore{ObjectStore: fs}
	svc := NewService(NewRepository(gated, "rooms"), auth.NewBcryptHasher())

	r := liveRoom("alpha")
	require.NoError(t, svc.SaveFromLive(r, ""))

	// Stall the next sync between its load and its save.
	entered := make(chan struct{})
	release := make(chan struct{})
	gated.setGate(func() {
		close(entered)
		<-release
	})

	syncDone := make(chan error, 1)
	go func() { syncDone <- svc.SaveFromLive(r, "") }()
	<-entered

	pwDone := make(chan error, 1)
	go func() { pwDone <- svc.SetPassword("alpha", "hunter2") }()

	// The password write must wait for the in-flight sync; otherwise
	// the sync would save back the hashless snapshot it loaded.
	select {
	case err := <-pwDone:
		t.Fatalf("SetPassword completed inside an in-flight sync: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-syncDone)
	require.NoError(t, <-pwDone)

	ok, err := svc.VerifyPassword("alpha", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.VerifyPassword("alpha", "anything")
	require.NoError(t, err)
	assert.False(t, ok, "a live sync must never clear the stored hash")
}

func TestSetPasswordBlankClears(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.SetPassword("alpha", "hunter2"))
	ok, err := svc.VerifyPassword("alpha", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.VerifyPassword("alpha", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SetPassword("alpha", ""))
	ok, err = svc.VerifyPassword("alpha", "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.VerifyPassword("alpha", "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPasswordMissingRecordFailsClosed(t *testing.T) {
	svc := newTestService(t)

	ok, err := svc.VerifyPassword("ghost", "")
	require.NoError(t, err)
	assert.True(t, ok, "blank password against a missing record is allowed")

	ok, err = svc.VerifyPassword("ghost", "secret")
	require.NoError(t, err)
	assert.False(t, ok, "non-blank password against a missing record is refused")
}

func TestStatsAndAverage(t *testing.T) {
	svc := newTestService(t)
	r := liveRoom("alpha")
	r.SetVote("Bob", "5")
	r.Reveal()

	require.NoError(t, svc.SaveFromLive(r, ""))
	s, err := svc.Load("alpha")
	require.NoError(t, err)
	require.NotNil(t, s.Stats)
	require.NotNil(t, s.Stats.LastAverage)
	assert.InDelta(t, 6.5, *s.Stats.LastAverage, 1e-9)

	r.Reset()
	require.NoError(t, svc.SaveFromLive(r, ""))
	s, err = svc.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stats.RoundsPlayed)
}

func TestInvalidRoomCode(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Load("../etc/passwd")
	assert.ErrorIs(t, err, ErrRoomCode)

	err = svc.SetPassword("no spaces allowed", "x")
	assert.ErrorIs(t, err, ErrRoomCode)
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.SaveFromLive(liveRoom("alpha"), ""))

	require.NoError(t, svc.Delete("alpha"))

	s, err := svc.Load("alpha")
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.True(t, errors.Is(svc.Delete("alpha"), store.ErrNotFound))
}
