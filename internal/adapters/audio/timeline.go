// Package audio renders scheduled speech into a single PCM track.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/PabloGalante/fiqh-assistant/internal/app/speech"
)

// Timeline is an offline speech.Output. Its clock stays at zero, so every
// buffer starts where the previous one ends, and buffers finish as soon as
// they are placed. Render mixes what was placed into one track.
type Timeline struct {
	mu       sync.Mutex
	clips    []*clip
	rate     int
	channels int
}

type clip struct {
	at      time.Duration
	buf     speech.Buffer
	stopped bool
	done    chan struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{rate: speech.SampleRate, channels: speech.Channels}
}

func (t *Timeline) Now() time.Duration { return 0 }

func (t *Timeline) Start(buf speech.Buffer, at time.Duration) (speech.Handle, error) {
	if buf.SampleRate != t.rate || buf.Channels != t.channels {
		return nil, fmt.Errorf("buffer format %d Hz/%d ch does not match timeline %d Hz/%d ch",
			buf.SampleRate, buf.Channels, t.rate, t.channels)
	}
	if at < 0 {
		return nil, fmt.Errorf("negative start %s", at)
	}

	c := &clip{at: at, buf: buf, done: make(chan struct{})}
	close(c.done)

	t.mu.Lock()
	t.clips = append(t.clips, c)
	t.mu.Unlock()
	return &handle{t: t, c: c}, nil
}

// Render returns the mixed track of every clip that was not stopped.
// Overlapping samples are summed and clipped to the int16 range.
func (t *Timeline) Render() speech.Buffer {
	t.mu.Lock()
	defer t.mu.Unlock()

	frames := 0
	for _, c := range t.clips {
		if c.stopped {
			continue
		}
		frames = max(frames, t.frameAt(c.at)+c.buf.Frames())
	}

	mix := make([]int32, frames*t.channels)
	for _, c := range t.clips {
		if c.stopped {
			continue
		}
		off := t.frameAt(c.at) * t.channels
		for i, s := range c.buf.Samples {
			mix[off+i] += int32(s)
		}
	}

	out := make([]int16, len(mix))
	for i, v := range mix {
		out[i] = int16(min(max(v, -32768), 32767))
	}
	return speech.Buffer{Samples: out, SampleRate: t.rate, Channels: t.channels}
}

// Reset drops every clip so the timeline can be reused for another message.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clips = nil
}

// frameAt rounds to the nearest frame; buffer durations are truncated to the nanosecond.
func (t *Timeline) frameAt(at time.Duration) int {
	return int((at*time.Duration(t.rate) + time.Second/2) / time.Second)
}

type handle struct {
	t *Timeline
	c *clip
}

// Stop removes the clip from the rendered track.
func (h *handle) Stop() {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	h.c.stopped = true
}

func (h *handle) Done() <-chan struct{} { return h.c.done }
