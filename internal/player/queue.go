package player

import (
	"context"
	"sync"
	"time"

	"legato/internal/clock"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// PlayRecorder appends play events. The catalog store implements it.
type PlayRecorder interface {
	RecordPlay(ctx context.Context, songID string, playedAt time.Time) error
}

// State is a snapshot of the playback queue
type State struct {
	Playlist     []models.Song `json:"playlist"`
	CurrentIndex int           `json:"currentIndex"`
	CurrentSong  *models.Song  `json:"currentSong,omitempty"`
	IsPlaying    bool          `json:"isPlaying"`
	IsOpen       bool          `json:"isOpen"` // full-screen player expanded
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// IsEmpty reports whether no queue is loaded.
func (s *State) IsEmpty() bool {
	return len(s.Playlist) == 0
}

// Queue is the playback state machine. It is Empty until a non-empty
// playlist is loaded, then Loaded and either playing or paused. IsOpen is
// independent of transport. Subscribers receive a snapshot after every change.
//
// Every time a new current song is committed a play event is recorded in the
// background; recording failures are logged and never affect the queue.
type Queue struct {
	state     *State
	mutex     sync.RWMutex
	listeners []chan *State

	recorder PlayRecorder
	clock    clock.Clock
	logger   *logrus.Logger
	pending  sync.WaitGroup
}

// NewQueue creates an empty queue. recorder may be nil.
func NewQueue(recorder PlayRecorder, clk clock.Clock, logger *logrus.Logger) *Queue {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Queue{
		state: &State{
			Playlist:  []models.Song{},
			UpdatedAt: clk.Now(),
		},
		listeners: make([]chan *State, 0),
		recorder:  recorder,
		clock:     clk,
		logger:    logger,
	}
}

// State returns a copy of the current state
func (q *Queue) State() *State {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	return q.snapshot()
}

// CurrentSong returns the current song, or nil when the queue is empty.
func (q *Queue) CurrentSong() *models.Song {
	return q.State().CurrentSong
}

// LoadAndPlay replaces the queue with songs and starts playing at startIndex,
// which is clamped into range. An empty songs slice is ignored.
func (q *Queue) LoadAndPlay(songs []models.Song, startIndex int) {
	if len(songs) == 0 {
		return
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.state.Playlist = append([]models.Song(nil), songs...)
	q.state.CurrentIndex = clamp(startIndex, len(songs))
	q.commitCurrent()
}

// SelectSong plays a single song picked from a listing. With keepQueue set
// and the song already queued, playback jumps to it inside the queue;
// otherwise the queue becomes just that song.
func (q *Queue) SelectSong(song models.Song, keepQueue bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if keepQueue {
		for i, queued := range q.state.Playlist {
			if queued.ID == song.ID {
				q.state.CurrentIndex = i
				q.commitCurrent()
				return
			}
		}
	}

	q.state.Playlist = []models.Song{song}
	q.state.CurrentIndex = 0
	q.commitCurrent()
}

// Next advances to the following song, wrapping to the start.
func (q *Queue) Next() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	n := len(q.state.Playlist)
	if n == 0 {
		return
	}
	q.state.CurrentIndex = (q.state.CurrentIndex + 1) % n
	q.commitCurrent()
}

// Previous moves to the preceding song, wrapping to the end.
func (q *Queue) Previous() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	n := len(q.state.Playlist)
	if n == 0 {
		return
	}
	if q.state.CurrentIndex == 0 {
		q.state.CurrentIndex = n - 1
	} else {
		q.state.CurrentIndex--
	}
	q.commitCurrent()
}

// SkipTo jumps to index and plays. It returns false, leaving the queue
// unchanged, when index is out of range.
func (q *Queue) SkipTo(index int) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if index < 0 || index >= len(q.state.Playlist) {
		return false
	}
	q.state.CurrentIndex = index
	q.commitCurrent()
	return true
}

// TrackCompleted is called by the audio engine when the current song ends
// naturally.
func (q *Queue) TrackCompleted() {
	q.Next()
}

// TogglePlay flips between playing and paused. An empty queue stays paused.
func (q *Queue) TogglePlay() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.state.Playlist) == 0 {
		return
	}
	q.state.IsPlaying = !q.state.IsPlaying
	q.touch()
}

// SetPlaying sets the transport state, e.g. when the audio engine pauses on
// its own. An empty queue stays paused.
func (q *Queue) SetPlaying(playing bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.state.Playlist) == 0 || q.state.IsPlaying == playing {
		return
	}
	q.state.IsPlaying = playing
	q.touch()
}

// SetPanelOpen expands or collapses the full-screen player.
func (q *Queue) SetPanelOpen(open bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.state.IsOpen = open
	q.touch()
}

// Clear empties the queue and stops playback.
func (q *Queue) Clear() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.state.Playlist = []models.Song{}
	q.state.CurrentIndex = 0
	q.state.CurrentSong = nil
	q.state.IsPlaying = false
	q.touch()
}

// Subscribe adds a listener for state changes
func (q *Queue) Subscribe() <-chan *State {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	ch := make(chan *State, 10)
	q.listeners = append(q.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a listener
func (q *Queue) Unsubscribe(ch <-chan *State) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, listener := range q.listeners {
		if listener == ch {
			close(listener)
			q.listeners = append(q.listeners[:i], q.listeners[i+1:]...)
			break
		}
	}
}

// Close waits for in-flight play recordings and closes all listeners.
func (q *Queue) Close() {
	q.pending.Wait()

	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, listener := range q.listeners {
		close(listener)
	}
	q.listeners = nil
}

// commitCurrent publishes playlist[currentIndex] as the current song, starts
// playback and records the play. Must be called with the lock held.
func (q *Queue) commitCurrent() {
	current := q.state.Playlist[q.state.CurrentIndex]
	q.state.CurrentSong = &current
	q.state.IsPlaying = true
	q.touch()
	q.recordPlay(current.ID, q.state.UpdatedAt)
}

// touch stamps the state and notifies listeners. Must be called with the
// lock held.
func (q *Queue) touch() {
	q.state.UpdatedAt = q.clock.Now()
	q.notifyListeners()
}

func (q *Queue) recordPlay(songID string, at time.Time) {
	if q.recorder == nil {
		return
	}

	q.pending.Add(1)
	go func() {
		defer q.pending.Done()
		if err := q.recorder.RecordPlay(context.Background(), songID, at); err != nil && q.logger != nil {
			q.logger.WithError(err).WithField("song_id", songID).Warn("Failed to record play")
		}
	}()
}

// snapshot deep-copies the state. Must be called with the lock held.
func (q *Queue) snapshot() *State {
	stateCopy := *q.state
	stateCopy.Playlist = append([]models.Song{}, q.state.Playlist...)
	if q.state.CurrentSong != nil {
		song := *q.state.CurrentSong
		stateCopy.CurrentSong = &song
	}
	return &stateCopy
}

// notifyListeners sends a snapshot to every subscriber. Listeners whose
// buffer is full miss this update. Must be called with the lock held.
func (q *Queue) notifyListeners() {
	if len(q.listeners) == 0 {
		return
	}
	snapshot := q.snapshot()
	for _, listener := range q.listeners {
		select {
		case listener <- snapshot:
		default:
		}
	}
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}
