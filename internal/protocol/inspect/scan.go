package inspect

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Scan reads the file list produced by a walk and returns, in list order,
// the paths whose contents contain pattern as a byte substring. Files that
// cannot be read are skipped so one bad entry never aborts a search.
func Scan(listPath, pattern string) ([]string, error) {
	data, err := os.ReadFile(listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file list %q: %w", listPath, err)
	}

	pat := []byte(pattern)
	var matches []string

	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		contents, err := os.ReadFile(line)
		if err != nil {
			continue
		}
		if bytes.Contains(contents, pat) {
			matches = append(matches, line)
		}
	}

	return matches, nil
}
