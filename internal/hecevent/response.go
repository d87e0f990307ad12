package hecevent

import (
	"bytes"
	"strconv"
	"strings"
)

// headTerminator marks the end of the HTTP response head (status line +
// headers) in the raw byte stream.
var headTerminator = []byte("\r\n\r\n")

// ParseHead scans buf for a complete HTTP response head. It returns the
// parsed status code, the byte offset just past the terminating blank
// line, the Content-Length header value (0 if absent), and whether a
// complete head with a parseable status line was found (ok is false for
// a complete head whose status line cannot be parsed).
//
// The source's probe does one read for the head and a separate read for
// the body, assuming both arrive in a single network read each. Splunk
// may instead split either across multiple TCP segments; this function
// is called repeatedly by the Worker as more bytes accumulate, so it
// tolerates both a single combined read and a split one — resolving the
// Open Question in spec.md §9 conservatively.
func ParseHead(buf []byte) (statusCode int, headEnd int, contentLength int, ok bool) {
	idx := bytes.Index(buf, headTerminator)
	if idx < 0 {
		return 0, 0, 0, false
	}
	headEnd = idx + len(headTerminator)

	head := string(buf[:idx])
	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return 0, headEnd, 0, false
	}

	statusCode, ok = StatusCode(lines[0])
	if !ok {
		return 0, headEnd, 0, false
	}

	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				contentLength = n
			}
		}
	}

	return statusCode, headEnd, contentLength, true
}

// StatusCode extracts the status code from an HTTP response status
// line, e.g. "HTTP/1.1 200 OK" -> 200. The status code is the second
// whitespace-delimited token, per spec.md §6.2.
func StatusCode(statusLine string) (int, bool) {
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
