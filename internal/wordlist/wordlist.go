// Package wordlist loads candidate labels from newline-delimited files.
package wordlist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNotFound reports a wordlist path that does not exist.
	ErrNotFound = errors.New("wordlist not found")
	// ErrEmpty reports a wordlist with no usable lines.
	ErrEmpty = errors.New("wordlist is empty")
)

// Load reads candidate labels from path in source order. Blank lines and
// surrounding whitespace are stripped.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening wordlist: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word != "" {
			words = append(words, word)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading wordlist: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return words, nil
}
