package audioio

import "encoding/binary"

// Encode16 packs samples as little-endian PCM16.
func Encode16(samples []int16) []byte {
	out := make([]byte, len(samples)*SampleBytes)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*SampleBytes:], uint16(s))
	}
	return out
}

// Decode16 unpacks little-endian PCM16. A trailing odd byte is ignored.
func Decode16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/SampleBytes)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*SampleBytes:]))
	}
	return out
}
