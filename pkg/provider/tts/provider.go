// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider synthesises a single sentence at a time over batch HTTP —
// none of the supported backends stream audio incrementally, so the
// interface is a plain request/response call rather than the bidirectional
// channel shape used by the STT providers. Concurrency across sentences of
// one response is the caller's concern (internal/ttspipeline), not the
// provider's.
package tts

import (
	"context"
	"encoding/binary"
	"errors"
)

// Params is the synthesis parameter tuple for a single call. It doubles as
// the cache key material for internal/ttscache — two Params with identical
// field values must synthesise to the same audio.
type Params struct {
	Model     string
	Speed     float64
	StyleID   string
	SpeakerID string
	Pitch     float64
}

// Result is the decoded output of a successful synthesis call. Audio is
// s16le mono PCM at SampleRate; callers are responsible for resampling to
// the playback rate and applying any volume scale.
type Result struct {
	PCM        []byte
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use: internal/ttspipeline
// issues multiple concurrent Synthesize calls per response, bounded by its
// own semaphore.
type Provider interface {
	// Synthesize renders text to audio under params. Returns an error for
	// any failure reaching or parsing the backend's response; the caller
	// treats this as a per-segment failure, not a fatal one.
	Synthesize(ctx context.Context, text string, params Params) (Result, error)
}

// ErrEmptyText is returned by provider implementations that refuse to
// synthesise empty or whitespace-only text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int
	SampleRate int
	Channels   int
}

// ParseWAV scans the RIFF/WAVE container in wav and returns the PCM data
// offset and format. Shared by every REST-backed provider since all of them
// return WAV-wrapped PCM.
func ParseWAV(wav []byte) (dataOffset, sampleRate, channels int, err error) {
	info, err := parseWAV(wav)
	if err != nil {
		return 0, 0, 0, err
	}
	return info.DataOffset, info.SampleRate, info.Channels, nil
}

func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("tts: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("tts: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("tts: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("tts: WAV response missing data chunk")
}
