// Package packet defines the buffer type carried between the Receiver and
// the Worker pool.
package packet

// MaxDatagramBytes is the largest UDP datagram the receiver will accept.
// NetFlow v5 exporters never exceed this; anything larger is a truncated
// or malformed send and is rejected by the decoder anyway.
const MaxDatagramBytes = 1500

// Buffer holds one received datagram plus the sender address it arrived
// from. It is produced exactly once by the Receiver and consumed by
// exactly one Worker — unless shipping fails, in which case a Worker
// re-enqueues the same Buffer for another Worker to retry.
type Buffer struct {
	Sender string
	Length int
	Data   [MaxDatagramBytes]byte
}

// Bytes returns the received portion of the datagram.
func (b *Buffer) Bytes() []byte {
	return b.Data[:b.Length]
}

// New copies data into a fresh Buffer tagged with the given sender.
// data longer than MaxDatagramBytes is truncated to the buffer capacity;
// the decoder will reject the resulting length mismatch downstream.
func New(sender string, data []byte) Buffer {
	var buf Buffer
	buf.Sender = sender
	buf.Length = copy(buf.Data[:], data)
	return buf
}
