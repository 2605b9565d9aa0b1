package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WAVHeader represents the canonical 44-byte PCM WAV header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes mono PCM-16 samples into WAV format.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// riffHeader is the 12-byte RIFF container preamble.
type riffHeader struct {
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32
	Format    [4]byte // "WAVE"
}

// chunkHeader precedes every RIFF sub-chunk.
type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

// fmtChunk is the fixed PCM portion of the "fmt " chunk.
type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV decodes PCM WAV data into interleaved PCM-16 samples,
// returning the samples, channel count and sample rate. Chunks other
// than "fmt " and "data" (LIST metadata, ffmpeg writes one by default)
// are skipped rather than misread as audio.
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	if len(data) < 44 {
		return nil, 0, 0, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	buf := bytes.NewReader(data)
	var riff riffHeader
	if err := binary.Read(buf, binary.LittleEndian, &riff); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(riff.ChunkID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("not a WAV file")
	}

	var format fmtChunk
	haveFormat := false

	for {
		var chunk chunkHeader
		if err := binary.Read(buf, binary.LittleEndian, &chunk); err != nil {
			return nil, 0, 0, fmt.Errorf("no data chunk found")
		}
		size := int(chunk.Size)

		switch string(chunk.ID[:]) {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			if err := binary.Read(buf, binary.LittleEndian, &format); err != nil {
				return nil, 0, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if err := skipChunk(buf, size-16); err != nil {
				return nil, 0, 0, err
			}
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, 0, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			if format.AudioFormat != 1 {
				return nil, 0, 0, fmt.Errorf("unsupported audio format %d, only PCM is supported", format.AudioFormat)
			}
			if format.BitsPerSample != 16 {
				return nil, 0, 0, fmt.Errorf("unsupported bit depth %d, only 16-bit is supported", format.BitsPerSample)
			}
			if format.NumChannels == 0 {
				return nil, 0, 0, fmt.Errorf("WAV header reports zero channels")
			}

			if remaining := buf.Len(); size > remaining {
				size = remaining
			}
			samples := make([]int16, size/2)
			if err := binary.Read(buf, binary.LittleEndian, samples); err != nil {
				return nil, 0, 0, fmt.Errorf("failed to read audio data: %w", err)
			}
			return samples, int(format.NumChannels), int(format.SampleRate), nil

		default:
			if err := skipChunk(buf, size); err != nil {
				return nil, 0, 0, err
			}
		}
	}
}

// skipChunk advances past a chunk body, honoring the RIFF rule that
// odd-sized chunks carry one pad byte.
func skipChunk(buf *bytes.Reader, size int) error {
	if size < 0 {
		return fmt.Errorf("invalid chunk size")
	}
	if size%2 == 1 {
		size++
	}
	if _, err := buf.Seek(int64(size), io.SeekCurrent); err != nil {
		return fmt.Errorf("failed to skip chunk: %w", err)
	}
	return nil
}

// DownmixMono collapses interleaved multi-channel PCM-16 samples into a
// single mono float32 signal by per-sample averaging across channels.
// Single-channel input is converted without modification.
func DownmixMono(interleaved []int16, channels int) []float32 {
	if channels <= 0 || len(interleaved) == 0 {
		return []float32{}
	}

	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(interleaved[i*channels+c]) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
