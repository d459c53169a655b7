// Package audio converts between floating-point sample buffers and the 16-bit
// little-endian linear PCM frames exchanged with the vendor, and provides the
// base64 representation used on the JSON streaming channel.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

const (
	// CaptureSampleRateHz is the fixed outbound microphone rate.
	CaptureSampleRateHz = 16000
	// PlaybackSampleRateHz is the vendor's fixed output rate.
	PlaybackSampleRateHz = 24000
	// Channels is mono for both directions.
	Channels = 1
	// BytesPerSample is the width of one s16le sample.
	BytesPerSample = 2
)

// Buffer holds decoded audio ready for the playback subsystem.
type Buffer struct {
	Data         []float32
	SampleRateHz int
	Channels     int
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRateHz <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Data) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRateHz)
}

// EncodePCM16 converts amplitude samples in [-1,1] to an s16le frame.
// Out-of-range samples are clamped. Empty input yields an empty frame.
func EncodePCM16(samples []float32) []byte {
	frame := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(int16(s*32767)))
	}
	return frame
}

// DecodePCM16 interprets frame as s16le PCM and converts it back to amplitude
// samples in [-1,1]. The byte length must be a multiple of the sample width.
func DecodePCM16(frame []byte, sampleRateHz, channels int) (*Buffer, error) {
	if len(frame)%BytesPerSample != 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("pcm frame length %d is not a multiple of %d", len(frame), BytesPerSample))
	}
	if sampleRateHz <= 0 || channels <= 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("invalid pcm shape: rate=%d channels=%d", sampleRateHz, channels))
	}
	data := make([]float32, len(frame)/BytesPerSample)
	for i := range data {
		v := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		data[i] = float32(v) / 32768
	}
	return &Buffer{Data: data, SampleRateHz: sampleRateHz, Channels: channels}, nil
}

// PCMDuration returns the playback duration of a raw s16le byte frame.
func PCMDuration(byteLen, sampleRateHz, channels int) time.Duration {
	bytesPerSecond := sampleRateHz * channels * BytesPerSample
	if byteLen <= 0 || bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(byteLen) * time.Second / time.Duration(bytesPerSecond)
}

// BytesToBase64 encodes an audio frame for the JSON streaming channel.
func BytesToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64ToBytes decodes a frame received on the JSON streaming channel.
func Base64ToBytes(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, core.NewDecodeError(fmt.Sprintf("invalid base64 audio payload: %v", err))
	}
	return b, nil
}
