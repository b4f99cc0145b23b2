// File: api/packet.go
// Package api defines the Packet value exchanged with peers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Packet is an opaque byte buffer sent to, or received from, a peer.
// It is immutable by convention: the slice returned by Bytes must not be
// modified. Copying a Packet is cheap and shares the underlying buffer.
type Packet struct {
	buf []byte
}

// NewPacket returns a Packet holding a copy of data.
func NewPacket(data []byte) Packet {
	if len(data) == 0 {
		return Packet{}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Packet{buf: buf}
}

// WrapPacket takes ownership of data without copying.
// The caller must not touch data afterwards.
func WrapPacket(data []byte) Packet {
	return Packet{buf: data}
}

// PacketFromString returns a Packet holding the bytes of s.
func PacketFromString(s string) Packet {
	if s == "" {
		return Packet{}
	}
	return Packet{buf: []byte(s)}
}

// Bytes returns a read-only view of the packet contents.
func (p Packet) Bytes() []byte { return p.buf }

// Len returns the number of bytes in the packet.
func (p Packet) Len() int { return len(p.buf) }

// IsEmpty reports whether the packet carries no bytes.
func (p Packet) IsEmpty() bool { return len(p.buf) == 0 }

// String returns the packet contents as a string.
func (p Packet) String() string { return string(p.buf) }

// Clone returns a deep copy that does not share the buffer.
func (p Packet) Clone() Packet { return NewPacket(p.buf) }
