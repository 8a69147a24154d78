package sink

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// wavPCM is the WAVE format tag for integer PCM.
const wavPCM = 1

// WAV records the mix into a WAVE file. The header is finalised on Close.
type WAV struct {
	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer
	pending []byte // trailing odd byte of a partial write
	closed  bool
	logger  *zap.Logger
}

// CreateWAV creates (or truncates) path and writes a header for format.
func CreateWAV(path string, format audio.Format, logger *zap.Logger) (*WAV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav sink %s: %w", path, err)
	}

	logger.Info("Recording mix to WAV",
		zap.String("path", path),
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels))

	return &WAV{
		file:    f,
		encoder: wav.NewEncoder(f, format.SampleRate, format.Bits, format.Channels, wavPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: format.Bits,
		},
		logger: logger,
	}, nil
}

// Write encodes p as s16le samples. A split sample is held until the next
// call.
func (w *WAV) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, os.ErrClosed
	}

	data := p
	if len(w.pending) > 0 {
		data = append(w.pending, p...)
		w.pending = nil
	}
	whole := len(data) - len(data)%audio.S16Bytes
	if whole < len(data) {
		w.pending = append([]byte(nil), data[whole:]...)
	}
	if whole == 0 {
		return len(p), nil
	}

	samples := audio.LEToPCMInt16(data[:whole])
	w.buf.Data = w.buf.Data[:0]
	for _, s := range samples {
		w.buf.Data = append(w.buf.Data, int(s))
	}
	if err := w.encoder.Write(w.buf); err != nil {
		return 0, fmt.Errorf("failed to encode wav samples: %w", err)
	}

	return len(p), nil
}

// Close writes the final header and closes the file.
func (w *WAV) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.encoder.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalise wav file: %w", encErr)
	}
	if fileErr != nil {
		return fileErr
	}

	w.logger.Info("WAV recording closed", zap.String("path", w.file.Name()))
	return nil
}
