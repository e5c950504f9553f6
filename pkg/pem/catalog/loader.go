package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const maxLineSize = 16 * 1024 * 1024

// LoadStats reports what a TSV load accepted.
type LoadStats struct {
	Entities  int
	Redirects int
	Skipped   int
}

// LoadTSV builds a Memory catalog from a names file (title<TAB>id) and an
// optional redirects file (redirect_id<TAB>target_title).
func LoadTSV(namesPath, redirectsPath string) (*Memory, LoadStats, error) {
	m := NewMemory()
	var stats LoadStats

	err := eachLine(namesPath, func(line string) {
		name, idStr, ok := strings.Cut(line, "\t")
		if !ok {
			stats.Skipped++
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil || name == "" {
			stats.Skipped++
			return
		}
		m.AddEntity(name, id)
		stats.Entities++
	})
	if err != nil {
		return nil, stats, fmt.Errorf("load catalog names: %w", err)
	}

	if redirectsPath == "" {
		return m, stats, nil
	}
	err = eachLine(redirectsPath, func(line string) {
		idStr, target, ok := strings.Cut(line, "\t")
		if !ok {
			stats.Skipped++
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil || target == "" {
			stats.Skipped++
			return
		}
		m.AddRedirect(id, target)
		stats.Redirects++
	})
	if err != nil {
		return nil, stats, fmt.Errorf("load catalog redirects: %w", err)
	}
	return m, stats, nil
}

func eachLine(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}
