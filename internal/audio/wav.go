package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV stores u as a 16-bit mono WAV file named after its cycle ID in dir.
// Returns the written path.
func WriteWAV(dir string, u Utterance) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create record dir: %w", err)
	}

	path := filepath.Join(dir, u.ID+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, u.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  u.SampleRate,
		},
		Data:           make([]int, len(u.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range u.Samples {
		buf.Data[i] = int(math.Round(float64(s) * 32768))
		if buf.Data[i] > math.MaxInt16 {
			buf.Data[i] = math.MaxInt16
		}
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return path, nil
}
