package receiver

import "math"

// sincHalfWidth is the number of input samples considered on each side of
// the ideal output sample position. Larger values trade CPU for a sharper
// transition band.
const sincHalfWidth = 8

// sincCutoff is the normalised cutoff (relative to the lower of the two
// sample rates' Nyquist frequency) of the low-pass filter implicit in the
// resampling kernel.
const sincCutoff = 0.95

// Resample resamples mono f32 PCM from srcRate to dstRate using the same
// windowed-sinc kernel the receiver uses for its 48kHz-to-16kHz downmix
// path. Exported so the gateway's play-out path can use the identical
// kernel to go the other way (TTS sample rate up to the 48 kHz Discord
// encode rate).
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	return resampleMono(samples, srcRate, dstRate)
}

// resampleMono resamples mono f32 PCM from srcRate to dstRate using a
// windowed-sinc kernel (Blackman-Harris window, cutoff 0.95×Nyquist). Used
// to take the receiver's downmixed 48 kHz audio to the 16 kHz feed rate the
// STT providers expect.
func resampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}
	if srcRate == dstRate {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	cutoff := sincCutoff
	if dstRate > srcRate {
		// Upsampling: no need to restrict the passband below the source
		// Nyquist frequency.
		cutoff = sincCutoff
	} else {
		// Downsampling: the kernel must reject content above the destination
		// Nyquist frequency, scaled back into source-sample units.
		cutoff = sincCutoff / ratio
	}

	outLen := int(float64(len(samples)) / ratio)
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)

	for i := range out {
		center := float64(i) * ratio
		out[i] = sincSampleAt(samples, center, cutoff)
	}
	return out
}

// sincSampleAt evaluates the windowed-sinc reconstruction of samples at
// fractional index center, using a kernel low-pass filtered at cutoff
// (normalised to the input sample rate, i.e. 1.0 == input Nyquist).
func sincSampleAt(samples []float32, center float64, cutoff float64) float32 {
	lo := int(math.Floor(center)) - sincHalfWidth + 1
	hi := int(math.Floor(center)) + sincHalfWidth

	var sum, weightSum float64
	for n := lo; n <= hi; n++ {
		if n < 0 || n >= len(samples) {
			continue
		}
		x := center - float64(n)
		w := sincKernel(x, cutoff)
		sum += float64(samples[n]) * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return float32(sum / weightSum)
}

// sincKernel evaluates a cutoff-scaled sinc function windowed by a
// four-term Blackman-Harris window over [-sincHalfWidth, sincHalfWidth].
func sincKernel(x float64, cutoff float64) float64 {
	if x == 0 {
		return cutoff
	}
	px := math.Pi * x
	sinc := cutoff * math.Sin(px*cutoff) / (px * cutoff)

	// Blackman-Harris window, normalised to [-sincHalfWidth, sincHalfWidth].
	n := (x + sincHalfWidth) / (2 * sincHalfWidth)
	if n < 0 || n > 1 {
		return 0
	}
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	w := a0 -
		a1*math.Cos(2*math.Pi*n) +
		a2*math.Cos(4*math.Pi*n) -
		a3*math.Cos(6*math.Pi*n)

	return sinc * w
}
