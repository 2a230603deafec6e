package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"legato/internal/testutil"
	"legato/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPlay struct {
	songID string
	at     time.Time
}

type fakeRecorder struct {
	mu    sync.Mutex
	plays []recordedPlay
	err   error
}

func (r *fakeRecorder) RecordPlay(_ context.Context, songID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays = append(r.plays, recordedPlay{songID: songID, at: at})
	return r.err
}

func (r *fakeRecorder) songIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.plays))
	for _, p := range r.plays {
		ids = append(ids, p.songID)
	}
	return ids
}

func songs(ids ...string) []models.Song {
	out := make([]models.Song, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Song{ID: id, Title: id + ".mp3", URI: "/m/" + id + ".mp3"})
	}
	return out
}

func newTestQueue(t *testing.T) (*Queue, *fakeRecorder, *testutil.StubClock) {
	t.Helper()
	t.Cleanup(func() { testutil.VerifyNoLeaks(t) })

	rec := &fakeRecorder{}
	clk := testutil.FixedClock()
	q := NewQueue(rec, clk, testutil.NewLogger())
	t.Cleanup(q.Close)
	return q, rec, clk
}

func TestQueueStartsEmpty(t *testing.T) {
	q, rec, _ := newTestQueue(t)

	state := q.State()
	assert.True(t, state.IsEmpty())
	assert.NotNil(t, state.Playlist)
	assert.Nil(t, state.CurrentSong)
	assert.False(t, state.IsPlaying)
	assert.False(t, state.IsOpen)

	q.Next()
	q.Previous()
	q.TogglePlay()
	q.SetPlaying(true)
	q.TrackCompleted()
	assert.False(t, q.SkipTo(0))
	q.LoadAndPlay(nil, 0)

	state = q.State()
	assert.True(t, state.IsEmpty())
	assert.False(t, state.IsPlaying)
	assert.Nil(t, q.CurrentSong())

	q.Close()
	assert.Empty(t, rec.songIDs())
}

func TestLoadAndPlay(t *testing.T) {
	q, rec, clk := newTestQueue(t)

	q.LoadAndPlay(songs("a", "b", "c"), 1)
	state := q.State()
	require.NotNil(t, state.CurrentSong)
	assert.Equal(t, "b", state.CurrentSong.ID)
	assert.Equal(t, 1, state.CurrentIndex)
	assert.True(t, state.IsPlaying)
	assert.Equal(t, clk.Now(), state.UpdatedAt)

	q.LoadAndPlay(songs("x", "y"), 7)
	assert.Equal(t, "y", q.CurrentSong().ID, "start index is clamped to the last song")

	q.LoadAndPlay(songs("p", "q"), -3)
	assert.Equal(t, "p", q.CurrentSong().ID, "negative start index is clamped to the first song")

	q.Close()
	assert.Equal(t, []string{"b", "y", "p"}, rec.songIDs())
}

func TestLoadAndPlayCopiesInput(t *testing.T) {
	q, _, _ := newTestQueue(t)

	input := songs("a", "b")
	q.LoadAndPlay(input, 0)
	input[1].Title = "mutated"

	assert.Equal(t, "b.mp3", q.State().Playlist[1].Title)
}

func TestNextAndPreviousWrap(t *testing.T) {
	q, rec, _ := newTestQueue(t)
	q.LoadAndPlay(songs("a", "b", "c"), 0)

	q.Next()
	assert.Equal(t, "b", q.CurrentSong().ID)
	q.Next()
	q.Next()
	assert.Equal(t, "a", q.CurrentSong().ID, "next wraps to the start")

	q.Previous()
	assert.Equal(t, "c", q.CurrentSong().ID, "previous wraps to the end")
	q.Previous()
	assert.Equal(t, "b", q.CurrentSong().ID)

	q.TrackCompleted()
	assert.Equal(t, "c", q.CurrentSong().ID)

	q.Close()
	assert.Equal(t, []string{"a", "b", "c", "a", "c", "b", "c"}, rec.songIDs())
}

func TestSingleSongQueueRepeats(t *testing.T) {
	q, rec, _ := newTestQueue(t)
	q.LoadAndPlay(songs("solo"), 0)

	q.Next()
	q.Previous()
	assert.Equal(t, "solo", q.CurrentSong().ID)
	assert.Equal(t, 0, q.State().CurrentIndex)

	q.Close()
	assert.Len(t, rec.songIDs(), 3)
}

func TestSkipTo(t *testing.T) {
	q, _, _ := newTestQueue(t)
	q.LoadAndPlay(songs("a", "b", "c"), 0)
	q.TogglePlay()

	assert.True(t, q.SkipTo(2))
	state := q.State()
	assert.Equal(t, "c", state.CurrentSong.ID)
	assert.True(t, state.IsPlaying, "skipping starts playback")

	assert.False(t, q.SkipTo(3))
	assert.False(t, q.SkipTo(-1))
	assert.Equal(t, "c", q.CurrentSong().ID)
}

func TestSelectSong(t *testing.T) {
	q, _, _ := newTestQueue(t)
	q.LoadAndPlay(songs("a", "b", "c"), 0)

	q.SelectSong(songs("c")[0], true)
	state := q.State()
	assert.Len(t, state.Playlist, 3, "song already queued keeps the queue")
	assert.Equal(t, 2, state.CurrentIndex)

	q.SelectSong(songs("z")[0], true)
	state = q.State()
	require.Len(t, state.Playlist, 1, "song outside the queue replaces it")
	assert.Equal(t, "z", state.CurrentSong.ID)

	q.LoadAndPlay(songs("a", "b"), 0)
	q.SelectSong(songs("b")[0], false)
	assert.Len(t, q.State().Playlist, 1)
}

func TestTransportAndPanel(t *testing.T) {
	q, _, clk := newTestQueue(t)
	q.LoadAndPlay(songs("a"), 0)

	q.TogglePlay()
	assert.False(t, q.State().IsPlaying)
	q.TogglePlay()
	assert.True(t, q.State().IsPlaying)

	q.SetPlaying(false)
	assert.False(t, q.State().IsPlaying)

	clk.Advance(time.Minute)
	q.SetPanelOpen(true)
	state := q.State()
	assert.True(t, state.IsOpen)
	assert.False(t, state.IsPlaying, "panel state is independent of transport")
	assert.Equal(t, clk.Now(), state.UpdatedAt)

	q.Clear()
	state = q.State()
	assert.True(t, state.IsEmpty())
	assert.Nil(t, state.CurrentSong)
	assert.False(t, state.IsPlaying)
	assert.True(t, state.IsOpen)
}

func TestStateIsACopy(t *testing.T) {
	q, _, _ := newTestQueue(t)
	q.LoadAndPlay(songs("a", "b"), 0)

	state := q.State()
	state.Playlist[0].Title = "changed"
	state.CurrentSong.Title = "changed"

	fresh := q.State()
	assert.Equal(t, "a.mp3", fresh.Playlist[0].Title)
	assert.Equal(t, "a.mp3", fresh.CurrentSong.Title)
}

func TestRecordPlayUsesClock(t *testing.T) {
	q, rec, clk := newTestQueue(t)

	q.LoadAndPlay(songs("a", "b"), 0)
	clk.Advance(3 * time.Minute)
	q.Next()
	q.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.plays, 2)
	assert.Equal(t, testutil.FixedClock().Now(), rec.plays[0].at)
	assert.Equal(t, clk.Now(), rec.plays[1].at)
}

func TestRecordFailureDoesNotAffectQueue(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	rec := &fakeRecorder{err: errors.New("database is locked")}
	q := NewQueue(rec, nil, testutil.NewLogger())
	q.LoadAndPlay(songs("a", "b"), 0)
	q.Next()
	q.Close()

	assert.Equal(t, "b", q.CurrentSong().ID)
	assert.True(t, q.State().IsPlaying)
}

func TestQueueWithCatalogStore(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	clk := testutil.FixedClock()
	require.NoError(t, db.UpsertSongs(ctx, songs("a", "b")))

	q := NewQueue(db, clk, testutil.NewLogger())
	q.LoadAndPlay(songs("a", "b"), 0)
	q.Next()
	q.Next()
	q.Close()

	totals, err := db.ListeningTotals(ctx, time.UnixMilli(0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.TotalPlays)
}

func TestSubscribe(t *testing.T) {
	q, _, _ := newTestQueue(t)

	updates := q.Subscribe()
	q.LoadAndPlay(songs("a", "b"), 0)

	select {
	case state := <-updates:
		require.NotNil(t, state.CurrentSong)
		assert.Equal(t, "a", state.CurrentSong.ID)
	case <-time.After(time.Second):
		t.Fatal("no state update delivered")
	}

	q.Unsubscribe(updates)
	_, open := <-updates
	assert.False(t, open, "unsubscribe closes the channel")

	q.Next()
}

func TestSubscriberBufferFullDropsUpdates(t *testing.T) {
	q, _, _ := newTestQueue(t)
	updates := q.Subscribe()

	q.LoadAndPlay(songs("a"), 0)
	for i := 0; i < 20; i++ {
		q.TogglePlay()
	}
	assert.Len(t, updates, cap(updates))

	q.Close()
	drained := 0
	for range updates {
		drained++
	}
	assert.Equal(t, cap(updates), drained)
}
