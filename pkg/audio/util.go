package audio

// UpmixMono copies each mono sample of src into every channel of dst.
// It returns the number of frames written.
func UpmixMono(dst, src []float32, channels int) int {
	frames := min(len(src), len(dst)/channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			dst[f*channels+c] = src[f]
		}
	}
	return frames
}
