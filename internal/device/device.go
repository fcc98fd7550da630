// ABOUTME: Audio device output layer
// ABOUTME: Pulls the engine's PCM byte stream into an oto playback device
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/whiteroom-audio/playback-go/internal/audio"
)

// Device is the output hardware abstraction. Start hands the device a
// PCM byte stream (16-bit little-endian, engine rate, interleaved
// stereo) which the device pulls on its own schedule.
type Device interface {
	Start(stream io.Reader) error
	Stop() error
	Running() bool
}

// Oto plays through the system audio device via the oto library. The
// underlying context is created once per process and suspended rather
// than torn down on stop; oto does not support reinitialization.
type Oto struct {
	mu      sync.Mutex
	ctx     *oto.Context
	player  *oto.Player
	running bool
}

// NewOto creates an oto-backed device. The system audio context is not
// touched until the first Start.
func NewOto() *Oto {
	return &Oto{}
}

func (o *Oto) Start(stream io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	if o.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   audio.SampleRate,
			ChannelCount: audio.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("failed to create audio context: %w", err)
		}
		<-ready
		o.ctx = ctx
	} else if err := o.ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio context: %w", err)
	}

	o.player = o.ctx.NewPlayer(stream)
	o.player.Play()
	o.running = true

	logrus.WithFields(logrus.Fields{
		"sample_rate": audio.SampleRate,
		"channels":    audio.Channels,
	}).Info("Audio device started")

	return nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return nil
	}

	if err := o.player.Close(); err != nil {
		logrus.WithError(err).Warn("Audio player close reported error")
	}
	o.player = nil

	if err := o.ctx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend audio context: %w", err)
	}
	o.running = false

	logrus.Info("Audio device stopped")
	return nil
}

func (o *Oto) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Manual is a device for tests and offline rendering. Instead of a
// hardware callback, Pull drives the stream a given number of bytes at a
// time.
type Manual struct {
	mu      sync.Mutex
	stream  io.Reader
	running bool
	starts  int
	stops   int
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Start(stream io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.stream = stream
	m.running = true
	m.starts++
	return nil
}

func (m *Manual) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	m.stops++
	return nil
}

func (m *Manual) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Pull reads n bytes from the stream, simulating the hardware pulling a
// buffer. It returns the bytes read.
func (m *Manual) Pull(n int) ([]byte, error) {
	m.mu.Lock()
	stream, running := m.stream, m.running
	m.mu.Unlock()

	if !running {
		return nil, fmt.Errorf("device not running")
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(stream, buf)
	return buf[:read], err
}

// Starts reports how many times the device was started.
func (m *Manual) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops reports how many times the device was stopped.
func (m *Manual) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}
