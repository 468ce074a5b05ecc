package facerec

import "math"

// EuclideanDistance computes the L2 distance between two descriptors in float64.
// Returns +Inf for descriptors of different length.
func EuclideanDistance(a, b Descriptor) float64 {
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

// percent maps a confidence to a rounded percentage, rounding halves up.
// The value is not clamped to [0, 100].
func percent(confidence float64) int {
	return int(math.Floor(confidence*100 + 0.5))
}
