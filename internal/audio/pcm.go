package audio

import "encoding/binary"

// BytesToInt16 converts S16LE (signed 16-bit little-endian) bytes to
// int16 samples. A trailing odd byte is ignored.
func BytesToInt16(data []byte) []int16 {
	numSamples := len(data) / BytesPerSample
	if numSamples == 0 {
		return nil
	}

	samples := make([]int16, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}

	return samples
}

// Int16ToBytes converts int16 samples to S16LE bytes.
func Int16ToBytes(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}

	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*BytesPerSample:], uint16(s))
	}

	return data
}
