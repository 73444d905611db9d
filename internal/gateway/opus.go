package gateway

import (
	"fmt"

	"github.com/mossgate/voxbridge/internal/receiver"
	"layeh.com/gopus"
)

const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	opusFrameSize   = opusSampleRate * opusFrameSizeMs / 1000 // 960 samples/channel
)

// encodeOpusFrames resamples mono f32 PCM at srcRate up to the 48 kHz stereo
// format Discord's voice transport expects, then Opus-encodes it in
// consecutive 20 ms frames.
func encodeOpusFrames(samples []float32, srcRate int) ([][]byte, error) {
	mono := receiver.Resample(samples, srcRate, opusSampleRate)
	stereo := upmixToStereo(mono)

	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("new opus encoder: %w", err)
	}

	samplesPerFrame := opusFrameSize * opusChannels
	var frames [][]byte
	for offset := 0; offset < len(stereo); offset += samplesPerFrame {
		end := offset + samplesPerFrame
		chunk := stereo[offset:min(end, len(stereo))]
		if len(chunk) < samplesPerFrame {
			padded := make([]int16, samplesPerFrame)
			copy(padded, chunk)
			chunk = padded
		}

		encoded, err := enc.Encode(chunk, opusFrameSize, len(chunk)*2)
		if err != nil {
			return nil, fmt.Errorf("encode opus frame: %w", err)
		}
		frames = append(frames, encoded)
	}
	return frames, nil
}

// upmixToStereo converts mono f32 samples in [-1.0, 1.0] to interleaved
// stereo int16 PCM by duplicating each sample across both channels.
func upmixToStereo(mono []float32) []int16 {
	stereo := make([]int16, len(mono)*2)
	for i, s := range mono {
		v := int16(clampSample(s) * 32767)
		stereo[2*i] = v
		stereo[2*i+1] = v
	}
	return stereo
}

func clampSample(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
