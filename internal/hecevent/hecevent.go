// Package hecevent turns decoded NetFlow records into Splunk HEC JSON
// events and composes the raw HTTP/1.1 request framing the Worker writes
// to its HECSession.
//
// The source builds this with printf/strcat into a fixed scratch buffer
// sized "(250 + len(sourcetype)) * count". This reimplementation uses a
// strings.Builder sized the same way up front, per the "builder pattern"
// design note, so the single allocation claim still holds.
package hecevent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Christopher-Costa/freeflow/internal/netflow"
)

// perEventScratch is the per-record allocation budget baked into the
// builder's initial size estimate: the literal JSON scaffolding plus
// room for a sourcetype and the comma-joined event fields.
const perEventScratch = 250

// BuildBody renders one concatenated JSON event per record — no
// separators between objects, matching the source's run-on
// concatenation format, which Splunk HEC accepts as a raw body.
// Exporter is the UDP sender's dotted-quad address.
func BuildBody(d netflow.Datagram, exporter, sourceType string) []byte {
	var b strings.Builder
	b.Grow((perEventScratch + len(sourceType)) * len(d.Records))

	for _, r := range d.Records {
		writeEvent(&b, d.Header, r, exporter, sourceType)
	}

	return []byte(b.String())
}

func writeEvent(b *strings.Builder, h netflow.Header, r netflow.Record, exporter, sourceType string) {
	event := strings.Join([]string{
		exporter,
		netflow.DottedQuad(r.SrcAddr),
		netflow.DottedQuad(r.DstAddr),
		netflow.DottedQuad(r.NextHop),
		strconv.Itoa(int(r.Input)),
		strconv.Itoa(int(r.Output)),
		strconv.Itoa(int(r.Packets)),
		strconv.Itoa(int(r.Bytes)),
		strconv.FormatInt(netflow.Duration(r), 10),
		strconv.Itoa(int(r.SrcPort)),
		strconv.Itoa(int(r.DstPort)),
		strconv.Itoa(int(r.TCPFlags)),
		strconv.Itoa(int(r.Protocol)),
		strconv.Itoa(int(r.ToS)),
		strconv.Itoa(int(r.SrcAS)),
		strconv.Itoa(int(r.DstAS)),
		strconv.Itoa(int(r.SrcMask)),
		strconv.Itoa(int(r.DstMask)),
	}, ",")

	fmt.Fprintf(b, `{"event": "%s", "sourcetype": "%s", "time": "%.6f"}`,
		event, sourceType, netflow.EventTime(h, r))
}

// BuildRequest composes the full HTTP/1.1 POST request (headers + body)
// for the Splunk HEC collector endpoint, exactly per spec.md §6.2:
// fixed header order, CRLF line endings, Content-Length equal to the
// byte length of body. An empty body (N=0) is a valid request — it is
// the connectivity/auth probe the Worker sends at startup.
func BuildRequest(host string, port int, token string, body []byte) []byte {
	var b strings.Builder
	b.Grow(len(body) + 256)

	fmt.Fprintf(&b, "POST /services/collector HTTP/1.1\r\n")
	fmt.Fprintf(&b, "Host: %s:%d\r\n", host, port)
	fmt.Fprintf(&b, "User-Agent: freeflow\r\n")
	fmt.Fprintf(&b, "Connection: keep-alive\r\n")
	fmt.Fprintf(&b, "Authorization: Splunk %s\r\n", token)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(&b, "\r\n")
	b.Write(body)

	return []byte(b.String())
}
