// Package deck models multi-track tape-deck playback: every track can be
// scheduled with its own start offset, seeked, stopped and polled for progress
// against a shared clock.
package deck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// PollInterval is how often progress is sampled while anything is playing
const PollInterval = 50 * time.Millisecond

// ErrTrackIndex is returned for an index outside the loaded tracks
var ErrTrackIndex = errors.New("track index out of range")

// Clock reports the current transport time in seconds
type Clock interface {
	Now() float64
}

// WallClock is a Clock driven by the monotonic system clock
type WallClock struct {
	start time.Time
}

// NewWallClock returns a clock that reads 0 now
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the seconds elapsed since the clock was created
func (c *WallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Track is a loaded audio buffer
type Track struct {
	Name     string
	Duration float64
}

// From clamps seek to a read position inside the track
func (t Track) From(seek float64) float64 {
	if seek < 0 || math.IsNaN(seek) {
		return 0
	}
	return math.Min(seek, t.Duration)
}

// Progress is the polled state of one track
type Progress struct {
	Index    int
	Name     string
	Elapsed  float64
	Duration float64
	Active   bool
	Label    string
}

type voice struct {
	active    bool
	startTime float64
	elapsed   float64
}

// Deck schedules playback of a fixed set of tracks
type Deck struct {
	mu      sync.Mutex
	clock   Clock
	tracks  []Track
	offsets []float64
	voices  []voice
}

// New creates a deck over tracks. A nil clock uses the wall clock.
func New(clock Clock, tracks []Track) *Deck {
	if clock == nil {
		clock = NewWallClock()
	}
	return &Deck{
		clock:   clock,
		tracks:  append([]Track(nil), tracks...),
		offsets: make([]float64, len(tracks)),
		voices:  make([]voice, len(tracks)),
	}
}

// Tracks returns the loaded tracks in order
func (d *Deck) Tracks() []Track {
	return append([]Track(nil), d.tracks...)
}

func (d *Deck) check(i int) error {
	if i < 0 || i >= len(d.tracks) {
		return fmt.Errorf("%w: %d", ErrTrackIndex, i)
	}
	return nil
}

// SetOffset sets how many seconds after Play the track starts sounding.
// Negative and non-numeric values count as 0.
func (d *Deck) SetOffset(i int, seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(i); err != nil {
		return err
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	d.offsets[i] = seconds
	return nil
}

// Offset returns the start offset of track i
func (d *Deck) Offset(i int) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.check(i) != nil {
		return 0
	}
	return d.offsets[i]
}

// Play starts track i offset seconds from now, reading from seek seconds into
// the buffer. A voice already playing on i is replaced.
func (d *Deck) Play(i int, seek float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(i); err != nil {
		return err
	}
	d.play(i, seek)
	return nil
}

func (d *Deck) play(i int, seek float64) {
	when := d.clock.Now() + d.offsets[i]
	d.voices[i] = voice{active: true, startTime: when - d.tracks[i].From(seek)}
}

// Stop cancels the voice on track i and resets its progress
func (d *Deck) Stop(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(i); err != nil {
		return err
	}
	d.voices[i] = voice{}
	return nil
}

// StopAll cancels every voice
func (d *Deck) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.voices {
		d.voices[i] = voice{}
	}
}

// PlayAll restarts every track from the top with its own offset
func (d *Deck) PlayAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.voices {
		d.voices[i] = voice{}
	}
	for i := range d.tracks {
		d.play(i, 0)
	}
}

// Seek plays track i from fraction (0..1) of its duration
func (d *Deck) Seek(i int, fraction float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(i); err != nil {
		return err
	}
	fraction = math.Max(0, math.Min(1, fraction))
	d.play(i, fraction*d.tracks[i].Duration)
	return nil
}

// Active reports whether any voice is scheduled or playing
func (d *Deck) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, v := range d.voices {
		if v.active {
			return true
		}
	}
	return false
}

// Poll samples the clock and returns the progress of every track. Voices that
// have reached the end of their buffer are stopped. While a voice is still in
// its pre-roll the reported position does not move.
func (d *Deck) Poll() []Progress {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	out := make([]Progress, len(d.tracks))
	for i, track := range d.tracks {
		v := &d.voices[i]
		if v.active {
			elapsed := now - v.startTime
			if elapsed >= 0 && elapsed <= track.Duration {
				v.elapsed = elapsed
			}
			if elapsed >= track.Duration {
				*v = voice{}
			}
		}

		out[i] = Progress{
			Index:    i,
			Name:     track.Name,
			Elapsed:  v.elapsed,
			Duration: track.Duration,
			Active:   v.active,
			Label:    FormatTime(v.elapsed) + "/" + FormatTime(track.Duration),
		}
	}
	return out
}

// Timeline returns the seconds from playing every track at seek until the
// last one ends
func (d *Deck) Timeline(seek float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var end float64
	for i, track := range d.tracks {
		end = math.Max(end, d.offsets[i]+track.Duration-track.From(seek))
	}
	return end
}

// Run polls every interval and hands the progress to fn until no voice is
// active or ctx is cancelled
func (d *Deck) Run(ctx context.Context, interval time.Duration, fn func([]Progress)) error {
	if interval <= 0 {
		interval = PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.StopAll()
			return ctx.Err()
		case <-ticker.C:
			progress := d.Poll()
			if fn != nil {
				fn(progress)
			}
			if !d.Active() {
				return nil
			}
		}
	}
}

// FormatTime renders seconds as M:SS
func FormatTime(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	m := int(sec / 60)
	s := int(math.Mod(sec, 60))
	return fmt.Sprintf("%d:%02d", m, s)
}
