package audio

import "math"

// Resample converts S16LE mono samples from srcRate to dstRate using
// linear interpolation. Output length is round(len(samples)*dst/src).
// When the rates match the input slice is returned unchanged.
//
// There is no anti-aliasing filter: this is a lossy approximation that
// is adequate for voice. Each call is independent, so no interpolation
// phase carries across chunk boundaries; the resulting boundary
// artifacts are a known, accepted limitation.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	outLen := int(math.Round(float64(len(samples)) * float64(dstRate) / float64(srcRate)))
	if outLen == 0 {
		return nil
	}

	out := make([]int16, outLen)
	step := float64(srcRate) / float64(dstRate)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(samples, idx)
		s1 := sampleAt(samples, idx+1)

		out[i] = int16(float64(s0) + frac*(float64(s1)-float64(s0)))
	}

	return out
}

// sampleAt clamps reads past the end to the final sample.
func sampleAt(samples []int16, idx int) int16 {
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	return samples[idx]
}
