package mixer

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortWrite is returned when the sink stops accepting data mid-fragment.
var ErrShortWrite = errors.New("sink accepted no data")

// WriteAll delivers buf to w, retrying partial writes until every byte is
// accepted. A write that makes no progress or fails is unrecoverable.
func WriteAll(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return fmt.Errorf("sink write failed with %d bytes left: %w", len(buf), err)
		}
		if n <= 0 {
			return fmt.Errorf("%w (%d bytes left)", ErrShortWrite, len(buf))
		}
		buf = buf[n:]
	}
	return nil
}
