// ABOUTME: Song source loading for the playback engine
// ABOUTME: Resolves a source descriptor into a fully decoded in-memory track
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/whiteroom-audio/playback-go/internal/audio"
)

// ErrUnsupportedFormat indicates the descriptor names a format no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrUnreadableSource indicates the descriptor could not be opened or decoded.
var ErrUnreadableSource = errors.New("unreadable audio source")

// tonePrefix marks synthetic test-tone descriptors, e.g. "tone:440" or
// "tone:440:2.5" for a 2.5 second tone.
const tonePrefix = "tone:"

// Load resolves a source descriptor into a decoded track.
//
// Descriptors are file paths dispatched by extension (.mp3, .flac, .wav,
// .opus) or a tone descriptor. The whole song is decoded up front and
// resampled to the engine rate, so the render goroutine only ever reads a
// stable buffer. A failed load returns an error and no track; the caller
// registers nothing.
func Load(descriptor string) (*audio.Track, error) {
	if strings.HasPrefix(descriptor, tonePrefix) {
		return loadTone(descriptor)
	}

	if _, err := os.Stat(descriptor); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableSource, descriptor, err)
	}

	var (
		track *audio.Track
		err   error
	)
	ext := strings.ToLower(filepath.Ext(descriptor))
	switch ext {
	case ".mp3":
		track, err = loadMP3(descriptor)
	case ".flac":
		track, err = loadFLAC(descriptor)
	case ".wav":
		track, err = loadWAV(descriptor)
	case ".opus", ".ogg":
		track, err = loadOpus(descriptor)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac, .wav, .opus)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	track = conform(track)

	logrus.WithFields(logrus.Fields{
		"function":    "Load",
		"source":      descriptor,
		"title":       track.Title,
		"frames":      track.Frames(),
		"duration_s":  track.DurationSeconds(),
		"sample_rate": track.Format.SampleRate,
	}).Info("Song source loaded")

	return track, nil
}

// loadTone builds a sine-wave track from a "tone:<freq>[:seconds]" descriptor.
func loadTone(descriptor string) (*audio.Track, error) {
	parts := strings.Split(strings.TrimPrefix(descriptor, tonePrefix), ":")
	freq, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || freq <= 0 {
		return nil, fmt.Errorf("%w: bad tone frequency %q", ErrUnreadableSource, parts[0])
	}

	seconds := 1.0
	if len(parts) > 1 {
		seconds, err = strconv.ParseFloat(parts[1], 64)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("%w: bad tone duration %q", ErrUnreadableSource, parts[1])
		}
	}

	return NewToneTrack(freq, seconds), nil
}

// conform resamples a track to the engine rate and widens mono to stereo.
func conform(track *audio.Track) *audio.Track {
	if track.Format.Channels == 1 {
		stereo := make([]int32, len(track.Samples)*2)
		for i, s := range track.Samples {
			stereo[i*2] = s
			stereo[i*2+1] = s
		}
		track.Samples = stereo
		track.Format.Channels = 2
	}

	if track.Format.SampleRate != audio.SampleRate {
		r := NewResampler(track.Format.SampleRate, audio.SampleRate, audio.Channels)
		out := make([]int32, r.OutputSamplesFor(len(track.Samples))+audio.Channels)
		n := r.Resample(track.Samples, out)
		track.Samples = out[:n]
		track.Format.SampleRate = audio.SampleRate
	}

	return track
}

// titleFromPath derives a display title from the file name.
func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
