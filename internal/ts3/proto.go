package ts3

import (
	"strconv"
	"strings"
)

// record is one decoded key=value group from a response or notification line.
type record map[string]string

// parseRecord decodes a single space-separated key=value group. Keys without
// a value (flags) map to the empty string.
func parseRecord(raw string) record {
	rec := make(record)
	for _, field := range strings.Split(raw, " ") {
		if field == "" {
			continue
		}
		if k, v, found := strings.Cut(field, "="); found {
			rec[k] = Unescape(v)
		} else {
			rec[field] = ""
		}
	}
	return rec
}

// parseRecords decodes a pipe-separated multi-record response line.
func parseRecords(raw string) []record {
	parts := strings.Split(raw, "|")
	records := make([]record, 0, len(parts))
	for _, part := range parts {
		records = append(records, parseRecord(part))
	}
	return records
}

func (r record) str(key string) string {
	return r[key]
}

func (r record) int(key string) int {
	n, err := strconv.Atoi(r[key])
	if err != nil {
		return 0
	}
	return n
}

func (r record) has(key string) bool {
	_, ok := r[key]
	return ok
}

// isResultLine reports whether line is the trailing status of a command
// exchange ("error id=0 msg=ok").
func isResultLine(line string) bool {
	return strings.HasPrefix(line, "error ")
}

// parseResultLine decodes a trailing status line. A nil return means ok.
func parseResultLine(line string) *QueryError {
	rec := parseRecord(strings.TrimPrefix(line, "error "))
	if rec.int("id") == 0 {
		return nil
	}
	return &QueryError{ID: rec.int("id"), Msg: rec.str("msg")}
}

// isNotifyLine reports whether line is an unsolicited server notification
// rather than part of a command response.
func isNotifyLine(line string) bool {
	return strings.HasPrefix(line, "notify")
}
