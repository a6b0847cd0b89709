package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderSize is the length of the canonical WAV header written by EncodeWAV.
const HeaderSize = 44

// ErrInvalidWAV is returned by DecodeWAV when the data is not a canonical PCM WAV.
var ErrInvalidWAV = errors.New("invalid WAV data")

// wavHeader is the canonical 44-byte RIFF header for a single PCM data chunk.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + data size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV wraps raw PCM in a WAV header for the fixed format.
// The output is deterministic for a given input.
func EncodeWAV(pcm []byte) []byte {
	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    SampleRate,
		ByteRate:      BytesPerSecond,
		BlockAlign:    Channels * BytesPerSample,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(pcm)))
	// Writes into a bytes.Buffer of a fixed-size struct cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVInfo describes a decoded WAV header.
type WAVInfo struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataSize      uint32
	Duration      time.Duration
}

// DecodeWAV validates a canonical PCM WAV and returns its header info and data chunk.
func DecodeWAV(data []byte) (WAVInfo, []byte, error) {
	if len(data) < HeaderSize {
		return WAVInfo{}, nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidWAV, HeaderSize, len(data))
	}

	var h wavHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return WAVInfo{}, nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	switch {
	case string(h.ChunkID[:]) != "RIFF":
		return WAVInfo{}, nil, fmt.Errorf("%w: missing RIFF header", ErrInvalidWAV)
	case string(h.Format[:]) != "WAVE":
		return WAVInfo{}, nil, fmt.Errorf("%w: missing WAVE format", ErrInvalidWAV)
	case string(h.Subchunk1ID[:]) != "fmt ":
		return WAVInfo{}, nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	case string(h.Subchunk2ID[:]) != "data":
		return WAVInfo{}, nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	case h.AudioFormat != 1:
		return WAVInfo{}, nil, fmt.Errorf("%w: unsupported audio format %d", ErrInvalidWAV, h.AudioFormat)
	}

	end := HeaderSize + int(h.Subchunk2Size)
	if end > len(data) {
		return WAVInfo{}, nil, fmt.Errorf("%w: data chunk claims %d bytes, only %d present", ErrInvalidWAV, h.Subchunk2Size, len(data)-HeaderSize)
	}

	info := WAVInfo{
		SampleRate:    h.SampleRate,
		Channels:      h.NumChannels,
		BitsPerSample: h.BitsPerSample,
		DataSize:      h.Subchunk2Size,
	}
	if h.ByteRate > 0 {
		info.Duration = time.Duration(h.Subchunk2Size) * time.Second / time.Duration(h.ByteRate)
	}
	return info, data[HeaderSize:end], nil
}
