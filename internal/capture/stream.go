package capture

import (
	"bytes"
	"sync"
	"time"

	"github.com/ent0n29/docent/internal/audio"
)

// StreamDevice records PCM16 chunks pushed by a remote client (the phone
// microphone streamed over the session websocket) and writes them as a WAV
// artifact when the cycle ends.
type StreamDevice struct {
	sampleRate  int
	maxDuration time.Duration

	mu     sync.Mutex
	active *streamCycle
}

type streamCycle struct {
	path  string
	pcm   bytes.Buffer
	done  func(error)
	timer *time.Timer
}

func NewStreamDevice(sampleRate int, maxDuration time.Duration) *StreamDevice {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if maxDuration <= 0 {
		maxDuration = 30 * time.Second
	}
	return &StreamDevice{sampleRate: sampleRate, maxDuration: maxDuration}
}

func (d *StreamDevice) SampleRate() int { return d.sampleRate }

func (d *StreamDevice) Start(path string, done func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return ErrDeviceBusy
	}
	c := &streamCycle{path: path, done: done}
	c.timer = time.AfterFunc(d.maxDuration, func() { d.finish(c) })
	d.active = c
	return nil
}

// Write appends captured audio. Hitting the duration limit ends the cycle.
func (d *StreamDevice) Write(pcm []byte) error {
	d.mu.Lock()
	c := d.active
	if c == nil {
		d.mu.Unlock()
		return ErrNotRecording
	}
	c.pcm.Write(pcm)
	full := c.pcm.Len() >= audio.PCMBytes(d.maxDuration, d.sampleRate)
	d.mu.Unlock()

	if full {
		go d.finish(c)
	}
	return nil
}

func (d *StreamDevice) Stop() error {
	d.mu.Lock()
	c := d.active
	d.mu.Unlock()
	if c == nil {
		return ErrNotRecording
	}
	go d.finish(c)
	return nil
}

func (d *StreamDevice) Close() error {
	d.mu.Lock()
	c := d.active
	d.active = nil
	d.mu.Unlock()
	if c != nil {
		c.timer.Stop()
	}
	return nil
}

func (d *StreamDevice) finish(c *streamCycle) {
	d.mu.Lock()
	if d.active != c {
		d.mu.Unlock()
		return
	}
	d.active = nil
	c.timer.Stop()
	pcm := c.pcm.Bytes()
	d.mu.Unlock()

	c.done(audio.WriteWAVFile(c.path, pcm, d.sampleRate))
}
