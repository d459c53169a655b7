package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// wavHeader is the 44-byte RIFF/WAVE header for linear PCM.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// WriteWAV wraps a raw s16le PCM payload in a WAV container so synthesized
// speech can be saved to disk and played with standard tooling.
func WriteWAV(w io.Writer, pcm []byte, sampleRateHz, channels int) error {
	if len(pcm) == 0 {
		return fmt.Errorf("cannot write empty pcm payload")
	}
	if len(pcm)%BytesPerSample != 0 {
		return fmt.Errorf("pcm length %d is not a multiple of %d", len(pcm), BytesPerSample)
	}
	if sampleRateHz <= 0 || channels <= 0 {
		return fmt.Errorf("invalid wav shape: rate=%d channels=%d", sampleRateHz, channels)
	}

	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRateHz),
		ByteRate:      uint32(sampleRateHz * channels * BytesPerSample),
		BlockAlign:    uint16(channels * BytesPerSample),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	buf.Write(pcm)
	_, err := w.Write(buf.Bytes())
	return err
}
