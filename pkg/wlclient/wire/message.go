// Package wire implements the Wayland client wire format: length-prefixed
// messages over a unix stream socket, with file descriptors carried as
// SCM_RIGHTS ancillary data.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxMessageSize is the protocol limit for a single message, header included.
const MaxMessageSize = 4096

// Fixed is a signed 24.8 fixed-point wire value.
type Fixed int32

// FixedInt converts a whole number to its fixed-point representation.
func FixedInt(v int) Fixed {
	return Fixed(v * 256)
}

// Int truncates the fixed-point value toward negative infinity.
func (f Fixed) Int() int {
	return int(f >> 8)
}

// Float64 returns the value as a float.
func (f Fixed) Float64() float64 {
	return float64(f) / 256
}

// Message is a single protocol message. Requests are assembled with the
// Put methods and sent with Conn.WriteMessage; events arrive from
// Conn.ReadMessage and are consumed with the sequential read methods.
// Read methods never panic: past-the-end reads return zero values and
// set the error reported by Err.
//
// The wire format is host byte order; this implementation assumes
// little-endian, like every platform the tool runs on.
type Message struct {
	Object uint32
	Opcode uint16

	data []byte
	fds  []int

	off int
	err error
}

// NewMessage starts a request for the given object and opcode.
func NewMessage(object uint32, opcode uint16) *Message {
	return &Message{Object: object, Opcode: opcode}
}

// PutUint appends a uint argument. new_id and object arguments use this too.
func (m *Message) PutUint(v uint32) *Message {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.data = append(m.data, b[:]...)
	return m
}

// PutInt appends an int argument.
func (m *Message) PutInt(v int32) *Message {
	return m.PutUint(uint32(v))
}

// PutFixed appends a fixed argument.
func (m *Message) PutFixed(f Fixed) *Message {
	return m.PutUint(uint32(f))
}

// PutString appends a string argument: length including the NUL
// terminator, the bytes, the terminator, then padding to 32 bits.
func (m *Message) PutString(s string) *Message {
	m.PutUint(uint32(len(s) + 1))
	m.data = append(m.data, s...)
	m.data = append(m.data, 0)
	for len(m.data)%4 != 0 {
		m.data = append(m.data, 0)
	}
	return m
}

// PutArray appends an array argument: length, bytes, padding to 32 bits.
func (m *Message) PutArray(b []byte) *Message {
	m.PutUint(uint32(len(b)))
	m.data = append(m.data, b...)
	for len(m.data)%4 != 0 {
		m.data = append(m.data, 0)
	}
	return m
}

// PutFd queues a file descriptor for the ancillary data of the sendmsg
// carrying this message. Fd arguments occupy no bytes in the body.
func (m *Message) PutFd(fd int) *Message {
	m.fds = append(m.fds, fd)
	return m
}

// Size is the encoded size of the message, header included.
func (m *Message) Size() int {
	return 8 + len(m.data)
}

// Err reports the first decode failure, or nil.
func (m *Message) Err() error {
	return m.err
}

func (m *Message) fail(what string) {
	if m.err == nil {
		m.err = errors.Errorf("truncated message: object %d opcode %d: missing %s at offset %d", m.Object, m.Opcode, what, m.off)
	}
}

// Uint reads the next uint argument.
func (m *Message) Uint() uint32 {
	if m.err != nil || m.off+4 > len(m.data) {
		m.fail("uint")
		return 0
	}
	v := binary.LittleEndian.Uint32(m.data[m.off:])
	m.off += 4
	return v
}

// Int reads the next int argument.
func (m *Message) Int() int32 {
	return int32(m.Uint())
}

// Fixed reads the next fixed argument.
func (m *Message) Fixed() Fixed {
	return Fixed(m.Uint())
}

// Str reads the next string argument. A null string decodes as "".
func (m *Message) Str() string {
	l := int(m.Uint())
	if m.err != nil {
		return ""
	}
	if l == 0 {
		return ""
	}
	padded := (l + 3) &^ 3
	if m.off+padded > len(m.data) {
		m.fail("string")
		return ""
	}
	s := string(m.data[m.off : m.off+l-1])
	m.off += padded
	return s
}

// Array reads the next array argument. The returned slice aliases the
// message buffer.
func (m *Message) Array() []byte {
	l := int(m.Uint())
	if m.err != nil {
		return nil
	}
	padded := (l + 3) &^ 3
	if m.off+padded > len(m.data) {
		m.fail("array")
		return nil
	}
	b := m.data[m.off : m.off+l]
	m.off += padded
	return b
}

func (m *Message) encode(dst []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], m.Object)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(m.Size())<<16|uint32(m.Opcode))
	dst = append(dst, hdr[:]...)
	return append(dst, m.data...)
}
