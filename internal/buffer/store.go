// Package buffer owns the shared memory handed to the compositor: one
// memfd-backed wl_shm pool per captured frame, sized exactly to the
// frame, mapped until released.
package buffer

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

// Buffer is one allocated frame buffer. The compositor writes the
// captured frame into Data through the pool fd.
type Buffer struct {
	wl     *wlclient.Buffer
	data   []byte
	Width  int32
	Height int32
	Stride int32
	Format uint32
}

// WL is the protocol buffer, for attaching and for matching release
// events.
func (b *Buffer) WL() *wlclient.Buffer { return b.wl }

// Data is the mapped pool memory backing the buffer.
func (b *Buffer) Data() []byte { return b.data }

// Store allocates and releases frame buffers and keeps count of what
// is still out.
type Store struct {
	shm         *wlclient.Shm
	outstanding int
}

// NewStore returns a store allocating from the given wl_shm.
func NewStore(shm *wlclient.Shm) *Store {
	return &Store{shm: shm}
}

// Allocate builds a buffer for the given frame parameters: a sealed
// memory fd of exactly stride*height bytes, shared as a single-buffer
// pool. The pool object is destroyed right away; the wl_buffer keeps
// the memory alive on the compositor side, the mapping on ours.
func (s *Store) Allocate(width, height, stride int32, format uint32) (*Buffer, error) {
	if width <= 0 || height <= 0 || stride < width*4 {
		return nil, errors.Errorf("invalid buffer parameters %dx%d stride %d", width, height, stride)
	}
	size64 := int64(stride) * int64(height)
	if size64 > math.MaxInt32 {
		return nil, errors.Errorf("buffer of %d bytes exceeds pool limit", size64)
	}
	size := int32(size64)

	f, err := shmFile(size)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map buffer memory")
	}

	pool, err := s.shm.CreatePool(int(f.Fd()), size)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	wl, err := pool.CreateBuffer(0, width, height, stride, format)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	if err := pool.Destroy(); err != nil {
		unix.Munmap(data)
		return nil, err
	}

	s.outstanding++
	return &Buffer{
		wl:     wl,
		data:   data,
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
	}, nil
}

// Release destroys the protocol buffer and unmaps its memory. Releasing
// a buffer twice is an error in the caller; the nil check only covers
// aborted captures that never got a buffer.
func (s *Store) Release(b *Buffer) error {
	if b == nil {
		return nil
	}
	err := b.wl.Destroy()
	if merr := unix.Munmap(b.data); merr != nil && err == nil {
		err = errors.Wrap(merr, "failed to unmap buffer memory")
	}
	b.data = nil
	s.outstanding--
	return err
}

// Outstanding is the number of allocated buffers not yet released.
func (s *Store) Outstanding() int {
	return s.outstanding
}

// shmFile makes the anonymous shareable file behind a pool. Sealed
// memfds are the norm; the unlinked temp file path covers kernels
// without memfd_create.
func shmFile(size int32) (*os.File, error) {
	fd, err := unix.MemfdCreate("wayfreeze-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err == nil {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			return nil, errors.Wrap(err, "failed to size shm fd")
		}
		unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK)
		return os.NewFile(uintptr(fd), "wayfreeze-shm"), nil
	}

	f, err := os.CreateTemp(os.Getenv("XDG_RUNTIME_DIR"), "wayfreeze-shm-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create shm file")
	}
	os.Remove(f.Name())
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to size shm file")
	}
	return f, nil
}
