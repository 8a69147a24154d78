package sink

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Device writes fragments straight to a character device or file.
type Device struct {
	file   *os.File
	logger *zap.Logger
}

// OpenDevice opens path for writing. Regular files are created if missing.
func OpenDevice(path string, logger *zap.Logger) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open sink device %s: %w", path, err)
	}

	logger.Info("Opened sink device", zap.String("path", path))
	return &Device{file: f, logger: logger}, nil
}

func (d *Device) Write(p []byte) (int, error) {
	return d.file.Write(p)
}

// Close closes the device.
func (d *Device) Close() error {
	d.logger.Info("Closing sink device", zap.String("path", d.file.Name()))
	return d.file.Close()
}
