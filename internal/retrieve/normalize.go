package retrieve

// Normalize linearly rescales the values of scores into [0, 1]. When every
// value is equal (including a single entry) each key maps to 1. An empty
// mapping yields an empty mapping.
func Normalize(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	first := true
	var lo, hi float64
	for _, v := range scores {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	span := hi - lo
	for k, v := range scores {
		if span == 0 {
			out[k] = 1
			continue
		}
		out[k] = (v - lo) / span
	}
	return out
}
