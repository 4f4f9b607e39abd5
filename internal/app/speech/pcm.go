package speech

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Fixed output layout of the synthesis provider.
const (
	SampleRate = 24000
	Channels   = 1
)

// Buffer is decoded signed 16-bit PCM, interleaved when Channels > 1.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Frames is the number of sample frames.
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration is the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Decode turns a base64 little-endian s16 payload into a Buffer.
func Decode(payload string) (Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Buffer{}, fmt.Errorf("decoding base64 audio: %w", err)
	}
	return DecodePCM(raw)
}

// DecodePCM converts raw little-endian s16 bytes to samples.
func DecodePCM(raw []byte) (Buffer, error) {
	if len(raw)%2 != 0 {
		return Buffer{}, fmt.Errorf("pcm payload has odd length %d", len(raw))
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return Buffer{Samples: samples, SampleRate: SampleRate, Channels: Channels}, nil
}
