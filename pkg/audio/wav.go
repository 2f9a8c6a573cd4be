// Package audio holds the PCM<->WAV framing and the pure byte-manipulation
// building blocks (resampler, FIFO queue) the dialogue core is built on.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// NewWavBuffer wraps raw PCM16 mono bytes in a minimal canonical WAV header.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(wavHeaderSize + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// StripWAVHeader returns the PCM payload of a WAV buffer produced by
// NewWavBuffer (or any canonical 44-byte-header PCM16 mono WAV). Used by
// tests asserting pcm2wav -> strip -> pcm byte-equality.
func StripWAVHeader(wav []byte) ([]byte, error) {
	if len(wav) < wavHeaderSize {
		return nil, fmt.Errorf("audio: wav buffer too short: %d bytes", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return nil, fmt.Errorf("audio: not a RIFF/WAVE buffer")
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	end := wavHeaderSize + int(dataLen)
	if end > len(wav) {
		end = len(wav)
	}
	return wav[wavHeaderSize:end], nil
}
