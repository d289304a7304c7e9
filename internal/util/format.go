package util

import (
	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count as "1.2 MB"
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

// FormatCount renders a count with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
