package render

import (
	"fmt"
	"strconv"
)

const (
	framePrefix   = "frame_"
	frameExt      = ".png"
	minFrameWidth = 4
)

// FrameDigits returns the zero-padding width used for a sequence of total
// frames. Every index in [0, total) fits without changing lexical order.
func FrameDigits(total int) int {
	if total < 1 {
		return minFrameWidth
	}
	digits := len(strconv.Itoa(total - 1))
	if digits < minFrameWidth {
		return minFrameWidth
	}
	return digits
}

// FrameFileName returns the CapturedFrame name for index.
func FrameFileName(index, total int) string {
	return fmt.Sprintf("%s%0*d%s", framePrefix, FrameDigits(total), index, frameExt)
}

// FramePattern returns the printf-style input pattern for the encoder.
func FramePattern(total int) string {
	return fmt.Sprintf("%s%%0%dd%s", framePrefix, FrameDigits(total), frameExt)
}

// ValidFrameCount reports whether total can describe a job.
func ValidFrameCount(total int) bool {
	return total >= 1
}
