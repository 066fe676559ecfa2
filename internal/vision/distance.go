package vision

import "math"

// EuclideanDistance returns the L2 distance between a and b, or +Inf when the
// vectors have different lengths.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distances computes the distance from query to every encoding.
func Distances(encodings [][]float32, query []float32) []float64 {
	out := make([]float64, len(encodings))
	for i, enc := range encodings {
		out[i] = EuclideanDistance(enc, query)
	}
	return out
}

// BestMatch returns the index and distance of the closest encoding. Ties go
// to the lowest index. ok is false when encodings is empty.
func BestMatch(encodings [][]float32, query []float32) (index int, distance float64, ok bool) {
	if len(encodings) == 0 {
		return -1, math.Inf(1), false
	}
	index, distance = 0, EuclideanDistance(encodings[0], query)
	for i := 1; i < len(encodings); i++ {
		if d := EuclideanDistance(encodings[i], query); d < distance {
			index, distance = i, d
		}
	}
	return index, distance, true
}
