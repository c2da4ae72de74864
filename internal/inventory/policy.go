package inventory

import "fmt"

// minLabelWidth keeps labels at least three digits so lexicographic order
// matches numeric order for any realistic capacity.
const minLabelWidth = 3

// SeatLabels generates the sequential zero-padded labels for a flight of
// the given capacity: "001" .. "150". Padding width grows with capacity so
// ascending label order is always ascending seat order.
func SeatLabels(capacity int) []string {
	width := minLabelWidth
	for n := capacity; n >= 1000; n /= 10 {
		width++
	}
	labels := make([]string, capacity)
	for i := range labels {
		labels[i] = fmt.Sprintf("%0*d", width, i+1)
	}
	return labels
}
