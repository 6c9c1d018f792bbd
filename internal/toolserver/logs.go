package toolserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// introspectLogsSeekWindow is how far from the end of a large log file
// introspect_logs seeks before scanning lines (spec §6.2: "seeks to last
// 2 MB for large files").
const introspectLogsSeekWindow = 2 * 1024 * 1024

func (s *Server) introspectLogs(_ context.Context, args map[string]interface{}) (*ToolResult, error) {
	service, _ := args["service"].(string)
	if service == "" {
		return nil, fmt.Errorf("introspect_logs: missing service")
	}
	if strings.ContainsAny(service, "/\\") {
		return nil, fmt.Errorf("introspect_logs: invalid service name")
	}

	maxLines := 200
	if v, ok := args["lines"].(float64); ok && v > 0 && int(v) < maxLines {
		maxLines = int(v)
	}
	search, _ := args["search"].(string)
	level, _ := args["level"].(string)

	path := filepath.Join(s.cfg.LogDir, service+".log")
	f, err := os.Open(path)
	if err != nil {
		return &ToolResult{Success: false, Output: err.Error()}, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("introspect_logs: stat %s: %w", path, err)
	}
	if info.Size() > introspectLogsSeekWindow {
		if _, err := f.Seek(-introspectLogsSeekWindow, io.SeekEnd); err != nil {
			return nil, fmt.Errorf("introspect_logs: seek %s: %w", path, err)
		}
	}

	var matched []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if search != "" && !strings.Contains(line, search) {
			continue
		}
		if level != "" && !strings.Contains(strings.ToUpper(line), strings.ToUpper(level)) {
			continue
		}
		matched = append(matched, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("introspect_logs: scan %s: %w", path, err)
	}

	if len(matched) > maxLines {
		matched = matched[len(matched)-maxLines:]
	}
	return &ToolResult{Success: true, Output: strings.Join(matched, "\n")}, nil
}
