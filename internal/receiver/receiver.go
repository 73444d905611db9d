// Package receiver implements AudioReceiver: it turns a mediaplatform
// Session's raw Opus packet stream into AudioChunk values ready for the
// dispatcher.
//
// Each tick is decoded, downmixed to mono, and resampled to the STT feed
// rate. The receiver never blocks the driver: publishing to the dispatcher
// is via an unbounded queue, so a slow or stalled dispatcher never applies
// backpressure to the media driver's packet pump, and no chunk is ever
// dropped for arriving too fast.
package receiver

import (
	"context"
	"log/slog"

	"layeh.com/gopus"

	"github.com/mossgate/voxbridge/internal/unboundedchan"
	"github.com/mossgate/voxbridge/pkg/mediaplatform"
	"github.com/mossgate/voxbridge/pkg/types"
)

const (
	inputSampleRate = 48000
	inputChannels   = 2
	opusFrameSize   = inputSampleRate * 20 / 1000 // 960 samples/channel at 20ms
)

// Receiver decodes a mediaplatform.Session's Opus stream into AudioChunks at
// outSampleRate mono.
type Receiver struct {
	outSampleRate int
	out           *unboundedchan.Chan[types.AudioChunk]

	decoders map[uint32]*gopus.Decoder
}

// New creates a Receiver publishing AudioChunks resampled to outSampleRate
// (the STT feed rate, e.g. 16000) on the returned channel.
func New(outSampleRate int) *Receiver {
	return &Receiver{
		outSampleRate: outSampleRate,
		out:           unboundedchan.New[types.AudioChunk](),
		decoders:      make(map[uint32]*gopus.Decoder),
	}
}

// Chunks returns the channel of decoded, resampled AudioChunks.
func (r *Receiver) Chunks() <-chan types.AudioChunk { return r.out.Out() }

// Run drains sess.Packets() until ctx is cancelled or the session ends,
// publishing AudioChunks. Run owns no other goroutines; callers should run
// it in its own goroutine per session.
func (r *Receiver) Run(ctx context.Context, sess mediaplatform.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-sess.Packets():
			if !ok {
				return
			}
			r.handlePacket(pkt)
		}
	}
}

func (r *Receiver) handlePacket(pkt mediaplatform.OpusPacket) {
	dec, ok := r.decoders[pkt.SourceID]
	if !ok {
		var err error
		dec, err = gopus.NewDecoder(inputSampleRate, inputChannels)
		if err != nil {
			slog.Error("receiver: create opus decoder", "source_id", pkt.SourceID, "error", err)
			return
		}
		r.decoders[pkt.SourceID] = dec
	}

	pcm, err := dec.Decode(pkt.Payload, opusFrameSize, false)
	if err != nil {
		slog.Warn("receiver: opus decode failed, dropping tick", "source_id", pkt.SourceID, "error", err)
		return
	}

	mono := stereoInt16ToMonoFloat32(pcm)
	resampled := resampleMono(mono, inputSampleRate, r.outSampleRate)

	chunk := types.AudioChunk{SourceID: pkt.SourceID, PCM: resampled}
	r.out.In() <- chunk
}

// Forget releases the decoder held for sourceID, e.g. once SsrcUserMap
// retires the binding.
func (r *Receiver) Forget(sourceID uint32) {
	delete(r.decoders, sourceID)
}

// stereoInt16ToMonoFloat32 downmixes interleaved 16-bit stereo PCM to mono
// float32 samples in [-1.0, 1.0], averaging L+R per frame.
func stereoInt16ToMonoFloat32(pcm []int16) []float32 {
	frames := len(pcm) / 2
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := float32(pcm[i*2]) / 32768.0
		rr := float32(pcm[i*2+1]) / 32768.0
		out[i] = (l + rr) / 2
	}
	return out
}
