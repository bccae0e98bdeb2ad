package inspect

import (
	"fmt"
	"io"
	"os"
)

// StreamFile copies the raw contents of path to w in fixed-size chunks,
// followed by the terminator. If the file cannot be opened the client gets
// an error reply and the terminator instead. A failure mid-stream aborts
// without a terminator: the absence of the marker is how the client detects
// a truncated transfer.
//
// Returns the number of content bytes written (terminator excluded).
func StreamFile(path string, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if _, werr := io.WriteString(w, ErrCannotOpenFile+Terminator); werr != nil {
			return 0, werr
		}
		return 0, fmt.Errorf("failed to open file %q: %w", path, err)
	}
	defer f.Close()

	var written int64
	buf := make([]byte, chunkSize)

	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("send failed while streaming %q: %w", path, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("read failed for file %q: %w", path, rerr)
		}
	}

	if _, err := io.WriteString(w, Terminator); err != nil {
		return written, fmt.Errorf("failed to send terminator for %q: %w", path, err)
	}
	return written, nil
}
