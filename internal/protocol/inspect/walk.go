package inspect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// walkFrame tracks one directory on the traversal stack.
type walkFrame struct {
	path    string
	entries []os.DirEntry
	next    int
}

// Walk visits root and every directory below it in pre-order, writing one
// "Directory: <path>" line per directory and one "File: <path>" line per
// regular file to w, and appending each file path to list. Entries within a
// directory are visited in name order, so output is deterministic.
//
// Symlinks, devices and other non-regular entries are skipped. A directory
// that cannot be read produces an inline error line and its subtree is
// skipped; the walk continues with the remaining entries. Walk returns the
// number of regular files visited.
//
// The traversal keeps its own stack rather than recursing, so arbitrarily
// deep trees cannot exhaust the goroutine stack.
func Walk(root string, w io.Writer, list *FileList) (int, error) {
	count := 0

	stack := make([]*walkFrame, 0, 16)

	push := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			_, werr := fmt.Fprintf(w, "%s%s\n", ErrCannotOpenDirPrefix, dir)
			if werr != nil {
				return werr
			}
			return nil
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", DirectoryPrefix, dir); err != nil {
			return err
		}
		stack = append(stack, &walkFrame{path: dir, entries: entries})
		return nil
	}

	if err := push(root); err != nil {
		return count, err
	}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		if frame.next >= len(frame.entries) {
			stack = stack[:len(stack)-1]
			continue
		}

		entry := frame.entries[frame.next]
		frame.next++

		full := filepath.Join(frame.path, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue // entry vanished or is unstattable, skip it
		}

		switch {
		case info.IsDir():
			if err := push(full); err != nil {
				return count, err
			}

		case info.Mode().IsRegular():
			count++
			if _, err := fmt.Fprintf(w, "%s%s\n", FilePrefix, full); err != nil {
				return count, err
			}
			if list != nil {
				if err := list.Append(full); err != nil {
					return count, err
				}
			}
		}
	}

	return count, nil
}
