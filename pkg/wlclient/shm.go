package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

// Pixel formats from the wl_shm.format enum. Screencopy reports the
// format it wants; only the two 32-bit formats matter here.
const (
	FormatArgb8888 uint32 = 0
	FormatXrgb8888 uint32 = 1
)

const (
	shmCreatePool = 0

	shmPoolCreateBuffer = 0
	shmPoolDestroy      = 1

	bufferDestroy = 0
)

// Shm is the wl_shm global.
type Shm struct {
	object
}

// ShmFormatEvent advertises a pixel format the compositor accepts.
type ShmFormatEvent struct {
	Shm    uint32
	Format uint32
}

func (ShmFormatEvent) String() string { return "wl_shm.format" }

func decodeShm(m *wire.Message) Event {
	if m.Opcode == 0 {
		return ShmFormatEvent{Shm: m.Object, Format: m.Uint()}
	}
	return nil
}

// CreatePool shares size bytes of the file behind fd with the
// compositor. The fd travels as ancillary data and can be closed by the
// caller once the request is sent.
func (s *Shm) CreatePool(fd int, size int32) (*ShmPool, error) {
	p := &ShmPool{object{s.c, s.c.newID(kindShmPool)}}
	m := wire.NewMessage(s.id, shmCreatePool).
		PutUint(p.id).
		PutFd(fd).
		PutInt(size)
	if err := s.c.request("wl_shm.create_pool", m); err != nil {
		return nil, err
	}
	return p, nil
}

// ShmPool is a wl_shm_pool backed by mapped memory shared with the
// compositor.
type ShmPool struct {
	object
}

// CreateBuffer carves a wl_buffer out of the pool.
func (p *ShmPool) CreateBuffer(offset, width, height, stride int32, format uint32) (*Buffer, error) {
	b := &Buffer{object{p.c, p.c.newID(kindBuffer)}}
	m := wire.NewMessage(p.id, shmPoolCreateBuffer).
		PutUint(b.id).
		PutInt(offset).
		PutInt(width).
		PutInt(height).
		PutInt(stride).
		PutUint(format)
	if err := p.c.request("wl_shm_pool.create_buffer", m); err != nil {
		return nil, err
	}
	return b, nil
}

// Destroy releases the pool. Buffers created from it stay valid.
func (p *ShmPool) Destroy() error {
	return p.c.request("wl_shm_pool.destroy", wire.NewMessage(p.id, shmPoolDestroy))
}

// Buffer is a wl_buffer.
type Buffer struct {
	object
}

// BufferReleaseEvent means the compositor no longer reads the buffer.
type BufferReleaseEvent struct {
	Buffer uint32
}

func (BufferReleaseEvent) String() string { return "wl_buffer.release" }

func decodeBuffer(m *wire.Message) Event {
	if m.Opcode == 0 {
		return BufferReleaseEvent{Buffer: m.Object}
	}
	return nil
}

// Destroy destroys the buffer.
func (b *Buffer) Destroy() error {
	return b.c.request("wl_buffer.destroy", wire.NewMessage(b.id, bufferDestroy))
}
