package wire

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Conn frames messages over a unix stream socket to the compositor.
//
// Writes are safe for concurrent use. ReadMessage, TakeFd and the
// returned messages belong to a single reader goroutine: descriptors
// arrive out of band and are queued in order, so the reader must take
// the fd for an event before decoding the next message.
type Conn struct {
	uc *net.UnixConn

	wmu  sync.Mutex
	wbuf []byte

	rbuf []byte
	fds  []int
}

// Dial connects to the compositor the way a native client does: an
// inherited socket in $WAYLAND_SOCKET if set, otherwise
// $WAYLAND_DISPLAY (absolute, or relative to $XDG_RUNTIME_DIR,
// defaulting to wayland-0).
func Dial() (*Conn, error) {
	if s := os.Getenv("WAYLAND_SOCKET"); s != "" {
		fd, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid WAYLAND_SOCKET %q", s)
		}
		// The variable must not leak into spawned commands; the fd is
		// ours alone now.
		os.Unsetenv("WAYLAND_SOCKET")
		unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
		f := os.NewFile(uintptr(fd), "wayland-socket")
		defer f.Close()
		nc, err := net.FileConn(f)
		if err != nil {
			return nil, errors.Wrap(err, "failed to adopt WAYLAND_SOCKET fd")
		}
		uc, ok := nc.(*net.UnixConn)
		if !ok {
			nc.Close()
			return nil, errors.Errorf("WAYLAND_SOCKET fd %d is not a unix socket", fd)
		}
		return New(uc), nil
	}

	display := os.Getenv("WAYLAND_DISPLAY")
	if display == "" {
		display = "wayland-0"
	}
	path := display
	if !filepath.IsAbs(path) {
		runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
		if runtimeDir == "" {
			return nil, errors.New("XDG_RUNTIME_DIR is not set and WAYLAND_DISPLAY is not an absolute path")
		}
		path = filepath.Join(runtimeDir, display)
	}

	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to wayland display %q", path)
	}
	return New(uc), nil
}

// New wraps an established unix connection.
func New(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc}
}

// WriteMessage sends one request, with any queued fds as ancillary data.
func (c *Conn) WriteMessage(m *Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.wbuf = m.encode(c.wbuf[:0])
	var oob []byte
	if len(m.fds) > 0 {
		oob = unix.UnixRights(m.fds...)
	}
	n, _, err := c.uc.WriteMsgUnix(c.wbuf, oob, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to send request: object %d opcode %d", m.Object, m.Opcode)
	}
	// The kernel takes the fds with the first byte; any tail is plain data.
	for n < len(c.wbuf) {
		k, err := c.uc.Write(c.wbuf[n:])
		if err != nil {
			return errors.Wrapf(err, "failed to send request tail: object %d opcode %d", m.Object, m.Opcode)
		}
		n += k
	}
	return nil
}

// ReadMessage blocks until one complete event is available and returns it.
func (c *Conn) ReadMessage() (*Message, error) {
	for {
		if len(c.rbuf) >= 8 {
			word1 := binary.LittleEndian.Uint32(c.rbuf[4:8])
			size := int(word1 >> 16)
			if size < 8 || size > MaxMessageSize {
				return nil, errors.Errorf("protocol error: message size %d", size)
			}
			if len(c.rbuf) >= size {
				m := &Message{
					Object: binary.LittleEndian.Uint32(c.rbuf[0:4]),
					Opcode: uint16(word1),
					data:   append([]byte(nil), c.rbuf[8:size]...),
				}
				rest := copy(c.rbuf, c.rbuf[size:])
				c.rbuf = c.rbuf[:rest]
				return m, nil
			}
		}
		if err := c.fill(); err != nil {
			return nil, err
		}
	}
}

func (c *Conn) fill() error {
	buf := make([]byte, MaxMessageSize)
	oob := make([]byte, 256)
	n, oobn, _, _, err := c.uc.ReadMsgUnix(buf, oob)
	if n > 0 {
		c.rbuf = append(c.rbuf, buf[:n]...)
	}
	if oobn > 0 {
		scms, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr != nil {
			return errors.Wrap(perr, "failed to parse ancillary data")
		}
		for _, scm := range scms {
			fds, perr := unix.ParseUnixRights(&scm)
			if perr != nil {
				continue
			}
			c.fds = append(c.fds, fds...)
		}
	}
	if err != nil {
		return errors.Wrap(err, "failed to read from compositor")
	}
	return nil
}

// TakeFd pops the oldest received descriptor. It reports false when the
// queue is empty, which means the current event carried no fd.
func (c *Conn) TakeFd() (int, bool) {
	if len(c.fds) == 0 {
		return -1, false
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, true
}

// Close shuts the socket and closes any fds the reader never took.
func (c *Conn) Close() error {
	for _, fd := range c.fds {
		unix.Close(fd)
	}
	c.fds = nil
	return c.uc.Close()
}
