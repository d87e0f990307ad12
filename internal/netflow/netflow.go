// Package netflow decodes NetFlow v5 datagrams.
//
// The source indexes into a raw byte buffer by 24 + 48*i and trusts the
// caller to have validated the length first. This reimplementation keeps
// the same fixed offsets but reads through an explicit, length-checked
// reader instead of raw pointer arithmetic, per the "explicit offset-based
// reader" design note.
package netflow

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed NetFlow v5 header length in bytes.
	HeaderSize = 24
	// RecordSize is the fixed NetFlow v5 flow record length in bytes.
	RecordSize = 48
	// MaxRecords is the largest record count a 1500-byte datagram can carry.
	MaxRecords = (1500 - HeaderSize) / RecordSize
	// Version is the only NetFlow version this decoder accepts.
	Version = 5
)

// Decode error kinds, checked in this exact order by Decode. Each maps
// 1:1 to a WARNING log line in the Worker and results in the packet
// being dropped.
var (
	// ErrInvalidLength means (len(datagram)-HeaderSize) is not a multiple of RecordSize.
	ErrInvalidLength = errors.New("netflow: invalid datagram length")
	// ErrInvalidVersion means the header's version field was not 5.
	ErrInvalidVersion = errors.New("netflow: invalid version")
	// ErrInvalidCount means the header's count field disagrees with the
	// record count implied by the datagram length.
	ErrInvalidCount = errors.New("netflow: invalid record count")
)

// Header is the 24-byte NetFlow v5 header, decoded from network (big
// endian) byte order.
type Header struct {
	Version        uint16
	Count          uint16
	SysUptime      uint32 // milliseconds since exporter boot
	UnixSecs       uint32 // seconds portion of export time
	UnixNsecs      uint32 // residual nanoseconds of export time
	FlowSequence   uint32
	EngineType     uint8
	EngineID       uint8
	SamplingInterval uint16
}

// Record is one 48-byte NetFlow v5 flow record, decoded from network
// byte order. Addresses are left as uint32; callers render dotted-quad
// at the formatting boundary, not here — this package is a pure decoder.
type Record struct {
	SrcAddr   uint32
	DstAddr   uint32
	NextHop   uint32
	Input     uint16
	Output    uint16
	Packets   uint32
	Bytes     uint32
	First     uint32 // sys_uptime-relative ms, start of flow
	Last      uint32 // sys_uptime-relative ms, end of flow
	SrcPort   uint16
	DstPort   uint16
	TCPFlags  uint8
	Protocol  uint8
	ToS       uint8
	SrcAS     uint16
	DstAS     uint16
	SrcMask   uint8
	DstMask   uint8
}

// Datagram is a decoded NetFlow v5 packet: one header plus its records.
type Datagram struct {
	Header  Header
	Records []Record
}

// Decode validates and decodes one NetFlow v5 datagram. Validation runs
// in the exact order spec'd: length, then version, then count, failing
// on the first violation.
func Decode(data []byte) (Datagram, error) {
	if len(data) < HeaderSize || (len(data)-HeaderSize)%RecordSize != 0 {
		return Datagram{}, ErrInvalidLength
	}

	h := decodeHeader(data[:HeaderSize])

	if h.Version != Version {
		return Datagram{}, ErrInvalidVersion
	}

	wantCount := (len(data) - HeaderSize) / RecordSize
	if int(h.Count) != wantCount {
		return Datagram{}, ErrInvalidCount
	}

	records := make([]Record, wantCount)
	for i := 0; i < wantCount; i++ {
		off := HeaderSize + i*RecordSize
		records[i] = decodeRecord(data[off : off+RecordSize])
	}

	return Datagram{Header: h, Records: records}, nil
}

func decodeHeader(b []byte) Header {
	return Header{
		Version:          binary.BigEndian.Uint16(b[0:2]),
		Count:            binary.BigEndian.Uint16(b[2:4]),
		SysUptime:        binary.BigEndian.Uint32(b[4:8]),
		UnixSecs:         binary.BigEndian.Uint32(b[8:12]),
		UnixNsecs:        binary.BigEndian.Uint32(b[12:16]),
		FlowSequence:     binary.BigEndian.Uint32(b[16:20]),
		EngineType:       b[20],
		EngineID:         b[21],
		SamplingInterval: binary.BigEndian.Uint16(b[22:24]),
	}
}

func decodeRecord(b []byte) Record {
	return Record{
		SrcAddr:  binary.BigEndian.Uint32(b[0:4]),
		DstAddr:  binary.BigEndian.Uint32(b[4:8]),
		NextHop:  binary.BigEndian.Uint32(b[8:12]),
		Input:    binary.BigEndian.Uint16(b[12:14]),
		Output:   binary.BigEndian.Uint16(b[14:16]),
		Packets:  binary.BigEndian.Uint32(b[16:20]),
		Bytes:    binary.BigEndian.Uint32(b[20:24]),
		First:    binary.BigEndian.Uint32(b[24:28]),
		Last:     binary.BigEndian.Uint32(b[28:32]),
		SrcPort:  binary.BigEndian.Uint16(b[32:34]),
		DstPort:  binary.BigEndian.Uint16(b[34:36]),
		// b[36] is a one-byte pad.
		TCPFlags: b[37],
		Protocol: b[38],
		ToS:      b[39],
		SrcAS:    binary.BigEndian.Uint16(b[40:42]),
		DstAS:    binary.BigEndian.Uint16(b[42:44]),
		SrcMask:  b[44],
		DstMask:  b[45],
		// b[46:48] is a two-byte pad.
	}
}

// DottedQuad renders a NetFlow address field (already host-order uint32,
// decoded big-endian off the wire) as IPv4 dotted-quad text.
func DottedQuad(addr uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// Duration returns last-first, the sys_uptime-relative flow duration in
// milliseconds. Per spec, this is a plain integer subtraction: if Last
// wraps below First the signed result is carried through literally,
// matching the original C implementation. See DESIGN.md for the Open
// Question decision.
func Duration(r Record) int64 {
	return int64(r.Last) - int64(r.First)
}

// EventTime computes the Splunk HEC "time" field for a record:
// unix_secs + unix_nsecs/1e9 - sys_uptime/1000 + first/1000, i.e. the
// wall-clock time the flow started.
func EventTime(h Header, r Record) float64 {
	return float64(h.UnixSecs) +
		float64(h.UnixNsecs)/1e9 -
		float64(h.SysUptime)/1000 +
		float64(r.First)/1000
}
