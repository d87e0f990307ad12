// Package fakeudp sends UDP datagrams to a receiver.Receiver under test.
package fakeudp

import "net"

// Send dials addr over UDP and writes data once.
func Send(addr string, data []byte) error {
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write(data)
	return err
}
