// Package format renders sizes for status lines.
package format

import "strconv"

var units = [...]string{"KB", "MB", "GB", "TB"}

// HumanizeBytes renders a byte count with a binary unit, e.g. "1.5 KB".
// Counts below 1 KB are exact; larger values keep one decimal.
func HumanizeBytes(b int64) string {
	if b < 1024 {
		return strconv.FormatInt(b, 10) + " B"
	}
	v := float64(b) / 1024
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + " " + units[i]
}
