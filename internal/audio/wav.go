package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultSampleRate = 16000
	bytesPerSample    = 2
)

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWAVHeader(dataLen, sampleRate int) wavHeader {
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataLen),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * bytesPerSample),
		BlockAlign:    bytesPerSample,
		BitsPerSample: 8 * bytesPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataLen),
	}
}

// WriteWAV writes mono PCM16LE samples to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if err := binary.Write(out, binary.LittleEndian, newWAVHeader(len(pcm), sampleRate)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// WriteWAVFile writes the recording to path through a temp file so a reader
// never sees a half-written artifact.
func WriteWAVFile(path string, pcm []byte, sampleRate int) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*.wav")
	if err != nil {
		return err
	}
	if err := WriteWAV(tmp, pcm, sampleRate); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// PCMDuration is the playback length of mono PCM16 audio.
func PCMDuration(pcmLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := pcmLen / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// PCMBytes is the number of PCM16 bytes needed to hold d of audio.
func PCMBytes(d time.Duration, sampleRate int) int {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return int(d.Seconds()*float64(sampleRate)) * bytesPerSample
}
