package audio

import (
	"encoding/binary"
	"math"
)

// Level measures the peak absolute amplitude and RMS of an s16le frame.
// It is the real meter behind the session volume display.
func Level(frame []byte) (peakAbs int, rms float64) {
	if len(frame) < BytesPerSample {
		return 0, 0
	}
	var sumSquares float64
	samples := 0
	for i := 0; i+1 < len(frame); i += BytesPerSample {
		v := int16(binary.LittleEndian.Uint16(frame[i : i+2]))
		abs := int(v)
		if abs < 0 {
			abs = -abs
		}
		if abs > peakAbs {
			peakAbs = abs
		}
		f := float64(v) / 32768
		sumSquares += f * f
		samples++
	}
	if samples == 0 {
		return peakAbs, 0
	}
	return peakAbs, math.Sqrt(sumSquares / float64(samples))
}
