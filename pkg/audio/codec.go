package audio

import "encoding/binary"

// S16LEToFloat normalises little-endian s16 samples from src into dst and
// returns the number of samples converted. A trailing odd byte is ignored.
func S16LEToFloat(dst []float32, src []byte) int {
	n := min(len(src)/S16Bytes, len(dst))
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(src[i*S16Bytes:]))
		dst[i] = float32(s) / S16Ceiling
	}
	return n
}

// FloatToS16LE converts normalised samples to little-endian s16,
// saturating out of range values instead of letting them wrap.
func FloatToS16LE(dst []byte, src []float32) int {
	n := min(len(src), len(dst)/S16Bytes)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*S16Bytes:], uint16(floatToS16(src[i])))
	}
	return n
}

// MixVolume accumulates src into dst scaled by volume. No clamping is done
// here; saturation happens on the way back to fixed point.
func MixVolume(dst, src []float32, volume float32) {
	n := min(len(src), len(dst))
	for i := 0; i < n; i++ {
		dst[i] += src[i] * volume
	}
}

func floatToS16(x float32) int16 {
	scaled := x * S16Ceiling
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
