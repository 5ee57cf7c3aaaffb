package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRecordingInFlight = errors.New("a recording is already in flight")
	ErrNotRecording      = errors.New("no recording in progress")
	ErrDeviceBusy        = errors.New("capture device busy")
)

// Artifact is the audio file produced by one recording cycle.
type Artifact struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// Device captures audio into a file. done must be called exactly once per
// successful Start, whether the cycle ended by Stop or by a device limit.
type Device interface {
	Start(path string, done func(error)) error
	Stop() error
	Close() error
}

// CompletionHandler receives the finalized artifact of a cycle.
type CompletionHandler func(a Artifact, err error)

// Controller owns the single in-flight recording artifact. The slot stays
// occupied from Start until Release, covering both capture and transcription.
type Controller struct {
	dir         string
	device      Device
	onCompleted CompletionHandler

	mu        sync.Mutex
	slot      *Artifact
	capturing bool
}

func NewController(dir string, device Device, onCompleted CompletionHandler) (*Controller, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	return &Controller{dir: dir, device: device, onCompleted: onCompleted}, nil
}

// SetCompletionHandler replaces the handler; used when the owner is built
// after the controller.
func (c *Controller) SetCompletionHandler(h CompletionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompleted = h
}

// Start allocates a fresh artifact and begins capture.
func (c *Controller) Start() (Artifact, error) {
	c.mu.Lock()
	if c.slot != nil {
		c.mu.Unlock()
		return Artifact{}, ErrRecordingInFlight
	}
	id := uuid.NewString()
	a := Artifact{
		ID:        id,
		Path:      filepath.Join(c.dir, "recording-"+id+".wav"),
		StartedAt: time.Now().UTC(),
	}
	c.slot = &a
	c.capturing = true
	c.mu.Unlock()

	var once sync.Once
	err := c.device.Start(a.Path, func(err error) {
		once.Do(func() { c.complete(a, err) })
	})
	if err != nil {
		c.mu.Lock()
		if c.slot != nil && c.slot.ID == a.ID {
			c.slot = nil
			c.capturing = false
		}
		c.mu.Unlock()
		return Artifact{}, fmt.Errorf("start capture: %w", err)
	}
	return a, nil
}

// Stop asks the device to finalize. Completion arrives through the handler.
func (c *Controller) Stop() error {
	c.mu.Lock()
	capturing := c.slot != nil && c.capturing
	c.mu.Unlock()
	if !capturing {
		return ErrNotRecording
	}
	return c.device.Stop()
}

// Pending returns the artifact currently owned by the controller.
func (c *Controller) Pending() (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == nil {
		return Artifact{}, false
	}
	return *c.slot, true
}

// Release frees the slot once the artifact has been handed off and consumed.
func (c *Controller) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot != nil && c.slot.ID == id {
		c.slot = nil
		c.capturing = false
	}
}

// Close stops any capture and removes an artifact nobody consumed.
func (c *Controller) Close() error {
	c.mu.Lock()
	pending := c.slot
	c.slot = nil
	c.capturing = false
	c.mu.Unlock()

	err := c.device.Close()
	if pending != nil {
		if rmErr := os.Remove(pending.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	return err
}

func (c *Controller) complete(a Artifact, err error) {
	c.mu.Lock()
	if c.slot == nil || c.slot.ID != a.ID {
		c.mu.Unlock()
		// Closed while finalizing.
		os.Remove(a.Path)
		return
	}
	c.capturing = false
	h := c.onCompleted
	c.mu.Unlock()

	if h != nil {
		h(a, err)
	}
}
