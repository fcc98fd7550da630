// ABOUTME: Per-format song decoders
// ABOUTME: Decodes MP3, FLAC, WAV, and Ogg Opus files into engine tracks
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"

	"github.com/whiteroom-audio/playback-go/internal/audio"
)

// loadMP3 decodes an entire MP3 file. go-mp3 always outputs 16-bit stereo.
func loadMP3(path string) (*audio.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 decode: %v", ErrUnreadableSource, err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 read: %v", ErrUnreadableSource, err)
	}

	samples := make([]int32, len(raw)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}

	return &audio.Track{
		Title:   titleFromPath(path),
		Artist:  "Unknown Artist",
		Album:   "Unknown Album",
		Format:  audio.Format{SampleRate: decoder.SampleRate(), Channels: 2, BitDepth: 16},
		Samples: samples,
	}, nil
}

// loadFLAC decodes an entire FLAC file, scaling all bit depths into the
// 24-bit range.
func loadFLAC(path string) (*audio.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: flac decode: %v", ErrUnreadableSource, err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)

	var samples []int32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: flac frame: %v", ErrUnreadableSource, err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, scaleTo24Bit(frame.Subframes[ch].Samples[i], bitDepth))
			}
		}
	}

	return &audio.Track{
		Title:   titleFromPath(path),
		Artist:  "Unknown Artist",
		Album:   "Unknown Album",
		Format:  audio.Format{SampleRate: int(info.SampleRate), Channels: channels, BitDepth: bitDepth},
		Samples: samples,
	}, nil
}

// loadWAV decodes an entire WAV file via go-audio.
func loadWAV(path string) (*audio.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrUnreadableSource)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: wav decode: %v", ErrUnreadableSource, err)
	}

	bitDepth := int(dec.BitDepth)
	samples := make([]int32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = scaleTo24Bit(int32(v), bitDepth)
	}

	return &audio.Track{
		Title:   titleFromPath(path),
		Artist:  "Unknown Artist",
		Album:   "Unknown Album",
		Format:  audio.Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels, BitDepth: bitDepth},
		Samples: samples,
	}, nil
}

// loadOpus decodes an Ogg Opus file with the pure Go pion decoder.
// Opus always decodes at 48kHz, which is already the engine rate.
func loadOpus(path string) (*audio.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("%w: ogg container: %v", ErrUnreadableSource, err)
	}

	decoder := opus.NewDecoder()
	// An opus packet carries at most 120ms of audio.
	const maxPacketFrames = 120 * 48
	frame := make([]byte, maxPacketFrames*2*2)

	var samples []int32
	for {
		segments, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: ogg page: %v", ErrUnreadableSource, err)
		}

		for _, segment := range segments {
			n := packetFrameCount(segment)
			if n == 0 || n > maxPacketFrames {
				continue
			}
			_, isStereo, err := decoder.Decode(segment, frame)
			if err != nil {
				// Header packets (OpusHead/OpusTags) are not audio; skip them.
				continue
			}
			for i := 0; i < n; i++ {
				if isStereo {
					l := audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(frame[i*4:])))
					r := audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(frame[i*4+2:])))
					samples = append(samples, l, r)
				} else {
					s := audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(frame[i*2:])))
					samples = append(samples, s, s)
				}
			}
		}
	}

	return &audio.Track{
		Title:   titleFromPath(path),
		Artist:  "Unknown Artist",
		Album:   "Unknown Album",
		Format:  audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16},
		Samples: samples,
	}, nil
}

// packetFrameCount returns the number of 48kHz sample frames an opus
// packet carries, read from its TOC byte (RFC 6716 section 3.1). The
// decoder reports no sample count, so the frame size must come from the
// packet itself; assuming a fixed 20ms frame would replay the stale tail
// of the previous decode for shorter frames.
func packetFrameCount(packet []byte) int {
	if len(packet) == 0 {
		return 0
	}
	toc := packet[0]
	config := toc >> 3

	var per int
	switch {
	case config <= 11: // SILK modes: 10, 20, 40, 60ms
		per = []int{480, 960, 1920, 2880}[config&3]
	case config <= 15: // Hybrid modes: 10, 20ms
		per = []int{480, 960}[config&1]
	default: // CELT modes: 2.5, 5, 10, 20ms
		per = []int{120, 240, 480, 960}[config&3]
	}

	switch toc & 0x3 {
	case 0: // one frame
		return per
	case 1, 2: // two frames
		return 2 * per
	default: // frame count byte follows the TOC
		if len(packet) < 2 {
			return 0
		}
		return per * int(packet[1]&0x3F)
	}
}

// scaleTo24Bit shifts a sample of the given bit depth into the 24-bit range.
func scaleTo24Bit(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}

// NewToneTrack generates a stereo sine-wave track at the engine rate,
// at half amplitude so mixed tones do not immediately clip.
func NewToneTrack(freq, seconds float64) *audio.Track {
	frames := int(seconds * float64(audio.SampleRate))
	samples := make([]int32, frames*audio.Channels)
	for i := 0; i < frames; i++ {
		t := float64(i) / float64(audio.SampleRate)
		v := int32(math.Sin(2*math.Pi*freq*t) * float64(audio.Max24Bit) * 0.5)
		samples[i*2] = v
		samples[i*2+1] = v
	}
	return &audio.Track{
		Title:   fmt.Sprintf("Tone %.0fHz", freq),
		Artist:  "Signal Generator",
		Album:   "Built-in",
		Format:  audio.Format{SampleRate: audio.SampleRate, Channels: audio.Channels, BitDepth: 24},
		Samples: samples,
	}
}
