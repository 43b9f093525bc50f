package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/utils"
)

// logLine matches one Spring-style log head line:
//
//	2024-05-01T12:00:05.123Z ERROR [accounts-ms,6f3a...,9c1b...] 1 --- [nio-8080-exec-1] c.e.a.AccountsController : message text
//
// Lines that do not match are treated as continuations of the previous
// record (stack traces, wrapped messages) and folded into its message.
var logLine = regexp.MustCompile(
	`^(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z)\s+` +
		`(?P<level>[A-Z]+)\s+\[(?P<service>[^,\]]+),(?P<trace>[^,\]]*),(?P<span>[^\]]*)\]\s.*?` +
		`(?P<class>[A-Za-z0-9_.$]+)\s*:\s(?P<message>.*)$`)

// LogParseResult carries the parsed records plus a count of lines that could
// not be attributed to any record. One bad line never aborts the batch.
type LogParseResult struct {
	Records []models.LogRecord
	Skipped int
}

// ParseLogs reads a per-service log dump and returns structured records.
// Multi-line entries are merged into the owning record with a " | "
// separator, mirroring how the dumps interleave stack traces.
func ParseLogs(r io.Reader) (LogParseResult, error) {
	var (
		result  LogParseResult
		current *models.LogRecord
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		m := logLine.FindStringSubmatch(line)
		if m == nil {
			if current == nil {
				result.Skipped++
				continue
			}
			current.Message += " | " + line
			continue
		}

		if current != nil {
			result.Records = append(result.Records, *current)
		}

		rec, ok := recordFromMatch(m)
		if !ok {
			result.Skipped++
			current = nil
			continue
		}
		current = &rec
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan logs: %w", err)
	}

	if current != nil {
		result.Records = append(result.Records, *current)
	}
	return result, nil
}

func recordFromMatch(m []string) (models.LogRecord, bool) {
	groups := make(map[string]string, len(m))
	for i, name := range logLine.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}

	ts, err := utils.ParseRFC3339(groups["timestamp"])
	if err != nil {
		return models.LogRecord{}, false
	}
	level, ok := models.ParseLogLevel(groups["level"])
	if !ok {
		return models.LogRecord{}, false
	}

	return models.LogRecord{
		Timestamp: ts,
		Service:   strings.TrimSpace(groups["service"]),
		Level:     level,
		Message:   groups["message"],
		TraceID:   strings.TrimSpace(groups["trace"]),
	}, true
}

// LoadLogFiles parses every file path in order and returns the combined
// records sorted by timestamp, plus the total skipped-line count. Missing or
// unreadable files are reported as errors; malformed content inside a file
// is not.
func LoadLogFiles(paths []string) ([]models.LogRecord, int, error) {
	var (
		records []models.LogRecord
		skipped int
	)

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, skipped, fmt.Errorf("open log file: %w", err)
		}
		res, err := ParseLogs(f)
		f.Close()
		if err != nil {
			return nil, skipped, fmt.Errorf("parse %s: %w", path, err)
		}
		records = append(records, res.Records...)
		skipped += res.Skipped
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, skipped, nil
}
