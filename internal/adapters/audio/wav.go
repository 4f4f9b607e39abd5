package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/PabloGalante/fiqh-assistant/internal/app/speech"
)

const bitsPerSample = 16

// WriteWAV writes buf as a canonical 44-byte-header PCM WAV file.
func WriteWAV(w io.Writer, buf speech.Buffer) error {
	dataLen := uint32(len(buf.Samples) * 2)
	blockAlign := uint16(buf.Channels * bitsPerSample / 8)
	byteRate := uint32(buf.SampleRate) * uint32(blockAlign)

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		36 + dataLen,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16), // fmt chunk size
		uint16(1),  // PCM
		uint16(buf.Channels),
		uint32(buf.SampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataLen,
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("writing wav header: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, buf.Samples); err != nil {
		return fmt.Errorf("writing wav samples: %w", err)
	}
	return nil
}
