package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"inatmap/pkg/logging"
)

// Regex to capture key=value or key="value with spaces"
var logRegex = regexp.MustCompile(`([a-zA-Z0-9_\-.]+)=(?:"([^"]*)"|([^ ]+))`)

// maxParamLen drops long values such as URLs from the status line.
const maxParamLen = 20

// maxTail caps ?n= on the latest-log endpoint.
const maxTail = 50

type latestLogResponse struct {
	Log   string   `json:"log"`
	Lines []string `json:"lines,omitempty"`
}

// handleLatestLog returns the last captured log line, formatted for the status bar.
// With ?n= it also returns up to n recent lines, oldest first.
func handleLatestLog(w http.ResponseWriter, r *http.Request) {
	resp := latestLogResponse{Log: formatLogLine(logging.GlobalLogCapture.GetLastLine())}
	if q := r.URL.Query().Get("n"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("n must be a positive integer: %w", errBadRequest))
			return
		}
		for _, l := range logging.GlobalLogCapture.Lines(min(n, maxTail)) {
			resp.Lines = append(resp.Lines, formatLogLine(l))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// formatLogLine turns a slog text line into "HH:MM:SS [LEVEL] msg (k=v, ...)".
// INFO carries no level tag, session ids are shortened to 8 characters, and
// other values longer than maxParamLen are dropped.
func formatLogLine(raw string) string {
	matches := logRegex.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var msg, timeStr, level string
	var params []string

	for _, m := range matches {
		key, val := m[1], m[2]
		if val == "" {
			val = m[3]
		}
		val = strings.TrimSpace(val)

		switch key {
		case "time":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				timeStr = t.Format("15:04:05")
			}
			continue
		case "level":
			if val != "INFO" {
				level = val
			}
			continue
		case "msg":
			msg = val
			continue
		case "session_id":
			if len(val) > 8 {
				val = val[:8]
			}
		}

		if len(val) > maxParamLen {
			continue
		}
		params = append(params, fmt.Sprintf("%s=%s", key, val))
	}

	if msg == "" {
		return raw
	}

	sort.Strings(params)

	parts := make([]string, 0, 3)
	if timeStr != "" {
		parts = append(parts, timeStr)
	}
	if level != "" {
		parts = append(parts, "["+level+"]")
	}
	parts = append(parts, msg)
	output := strings.Join(parts, " ")

	if len(params) > 0 {
		return fmt.Sprintf("%s (%s)", output, strings.Join(params, ", "))
	}
	return output
}
