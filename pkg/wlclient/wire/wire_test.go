package wire

import (
	"bytes"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fdConn(t, fds[0]), fdConn(t, fds[1])
}

func fdConn(t *testing.T, fd int) *Conn {
	t.Helper()
	f := os.NewFile(uintptr(fd), "pair")
	defer f.Close()
	nc, err := net.FileConn(f)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	c := New(nc.(*net.UnixConn))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMessageRoundTrip(t *testing.T) {
	a, b := socketPair(t)

	m := NewMessage(3, 7).
		PutUint(42).
		PutInt(-9).
		PutString("wl_output").
		PutFixed(FixedInt(-1)).
		PutArray([]byte{1, 2, 3, 4, 5})
	if err := a.WriteMessage(m); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Object != 3 || got.Opcode != 7 {
		t.Errorf("header = object %d opcode %d, want object 3 opcode 7", got.Object, got.Opcode)
	}
	if v := got.Uint(); v != 42 {
		t.Errorf("Uint() = %d, want 42", v)
	}
	if v := got.Int(); v != -9 {
		t.Errorf("Int() = %d, want -9", v)
	}
	if s := got.Str(); s != "wl_output" {
		t.Errorf("Str() = %q, want %q", s, "wl_output")
	}
	if f := got.Fixed(); f != FixedInt(-1) {
		t.Errorf("Fixed() = %d, want %d", f, FixedInt(-1))
	}
	if arr := got.Array(); !bytes.Equal(arr, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Array() = %v, want [1 2 3 4 5]", arr)
	}
	if err := got.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestStringPadding(t *testing.T) {
	tests := []struct {
		s    string
		size int
	}{
		{"", 8 + 8},
		{"a", 8 + 8},
		{"abc", 8 + 8},
		{"abcd", 8 + 12},
		{"wayland-1", 8 + 16},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			m := NewMessage(1, 0).PutString(tt.s)
			if m.Size() != tt.size {
				t.Errorf("Size() = %d, want %d", m.Size(), tt.size)
			}
			if got := m.Str(); got != tt.s {
				t.Errorf("Str() = %q, want %q", got, tt.s)
			}
		})
	}
}

func TestNullString(t *testing.T) {
	m := NewMessage(1, 0).PutUint(0)
	if got := m.Str(); got != "" {
		t.Errorf("Str() = %q, want empty", got)
	}
	if err := m.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestFixed(t *testing.T) {
	tests := []struct {
		name  string
		f     Fixed
		float float64
		trunc int
	}{
		{"minus one", FixedInt(-1), -1.0, -1},
		{"five", FixedInt(5), 5.0, 5},
		{"one and a half", Fixed(384), 1.5, 1},
		{"minus one and a half", Fixed(-384), -1.5, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Float64(); got != tt.float {
				t.Errorf("Float64() = %v, want %v", got, tt.float)
			}
			if got := tt.f.Int(); got != tt.trunc {
				t.Errorf("Int() = %d, want %d", got, tt.trunc)
			}
		})
	}
	if FixedInt(-1) != Fixed(-256) {
		t.Errorf("FixedInt(-1) = %d, want -256", FixedInt(-1))
	}
}

func TestTruncatedDecode(t *testing.T) {
	m := NewMessage(1, 0).PutUint(5)
	if v := m.Uint(); v != 5 {
		t.Fatalf("Uint() = %d, want 5", v)
	}
	if v := m.Uint(); v != 0 {
		t.Errorf("past-the-end Uint() = %d, want 0", v)
	}
	if m.Err() == nil {
		t.Error("Err() = nil after over-read, want error")
	}

	claims := NewMessage(1, 0).PutUint(100)
	if s := claims.Str(); s != "" {
		t.Errorf("Str() on truncated string = %q, want empty", s)
	}
	if claims.Err() == nil {
		t.Error("Err() = nil for truncated string, want error")
	}
}

func TestReadMessageSplitsStream(t *testing.T) {
	a, b := socketPair(t)

	for i := uint32(1); i <= 3; i++ {
		if err := a.WriteMessage(NewMessage(i, uint16(i)).PutUint(i * 10)); err != nil {
			t.Fatalf("WriteMessage %d: %v", i, err)
		}
	}
	for i := uint32(1); i <= 3; i++ {
		m, err := b.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		if m.Object != i {
			t.Errorf("message %d: object = %d, want %d", i, m.Object, i)
		}
		if v := m.Uint(); v != i*10 {
			t.Errorf("message %d: arg = %d, want %d", i, v, i*10)
		}
	}
}

func TestFdPassing(t *testing.T) {
	a, b := socketPair(t)

	f, err := os.CreateTemp(t.TempDir(), "payload")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("frozen"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	m := NewMessage(9, 1).PutUint(6).PutFd(int(f.Fd()))
	if err := a.WriteMessage(m); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	size := got.Uint()
	fd, ok := b.TakeFd()
	if !ok {
		t.Fatal("TakeFd() reported no fd, want one")
	}
	rf := os.NewFile(uintptr(fd), "received")
	defer rf.Close()

	buf := make([]byte, size)
	if _, err := rf.ReadAt(buf, 0); err != nil {
		t.Fatalf("read through received fd: %v", err)
	}
	if string(buf) != "frozen" {
		t.Errorf("payload = %q, want %q", buf, "frozen")
	}

	if fd, ok := b.TakeFd(); ok {
		t.Errorf("TakeFd() on empty queue = %d, want none", fd)
	}
}
