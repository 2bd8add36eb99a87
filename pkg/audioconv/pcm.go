package audioconv

// FromInt16 scales signed 16-bit samples into [-1, 1).
func FromInt16(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v) / 32768
	}
	return out
}

func scaleInts(in []int, bitDepth int) []float32 {
	full := float64(int64(1) << (bitDepth - 1))
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(max(-1, min(1, float64(v)/full)))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}

	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts between rates with linear interpolation. Good enough for
// speech going into a recognizer.
func Resample(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 || from <= 0 || to <= 0 {
		return in
	}

	n := (len(in)*to + from - 1) / from
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(in) - 1

	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
