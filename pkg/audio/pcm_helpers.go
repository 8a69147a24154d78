package audio

import "encoding/binary"

// PCMInt16ToLE converts int16 samples to raw little-endian bytes.
func PCMInt16ToLE(samples []int16) []byte {
	out := make([]byte, len(samples)*S16Bytes)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*S16Bytes:], uint16(s))
	}
	return out
}

// LEToPCMInt16 converts raw little-endian bytes back to int16 samples.
func LEToPCMInt16(b []byte) []int16 {
	out := make([]int16, len(b)/S16Bytes)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*S16Bytes:]))
	}
	return out
}
