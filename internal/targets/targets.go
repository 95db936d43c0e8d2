// Package targets reads the newline-delimited list of pages to watch.
package targets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Parse reads one URL per line. Blank lines are skipped. A line made only of
// '#' characters is a comment; '#' followed by text sets the group label for
// the URLs that follow. Repeated URLs keep their first occurrence.
func Parse(r io.Reader, logger *zap.Logger) ([]monitor.WatchTarget, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		out   []monitor.WatchTarget
		group string
		seen  = make(map[string]int)
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if label := strings.TrimSpace(strings.TrimLeft(line, "#")); label != "" {
				group = label
			}
			continue
		}
		if first, dup := seen[line]; dup {
			logger.Warn("duplicate url ignored",
				zap.String("url", line), zap.Int("line", lineNo), zap.Int("first_line", first))
			continue
		}
		seen[line] = lineNo
		out = append(out, monitor.WatchTarget{URL: line, Group: group})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return out, nil
}

// Load parses the list stored at path.
func Load(path string, logger *zap.Logger) ([]monitor.WatchTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return Parse(f, logger)
}
