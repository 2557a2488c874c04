package scanexec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadTargets reads a targets file: one host or address per line, blank
// lines and '#' comments ignored.
func LoadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseTargets(f)
}

// ParseTargets reads targets from r in the LoadTargets format. Duplicates
// keep their first position.
func ParseTargets(r io.Reader) ([]string, error) {
	var targets []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.ContainsAny(line, " \t") {
			return nil, NewInvalidTargetError(line, errors.New("contains whitespace"))
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, NewInvalidTargetError("", nil)
	}
	return targets, nil
}
