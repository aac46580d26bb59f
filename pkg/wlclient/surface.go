package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

const (
	compositorCreateSurface = 0

	surfaceDestroy            = 0
	surfaceAttach             = 1
	surfaceDamage             = 2
	surfaceCommit             = 6
	surfaceSetBufferTransform = 7
	surfaceSetBufferScale     = 8
)

// Compositor is the wl_compositor global.
type Compositor struct {
	object
}

// CreateSurface creates a bare wl_surface; a role (here: layer surface)
// must be assigned before it can be mapped.
func (co *Compositor) CreateSurface() (*Surface, error) {
	s := &Surface{object{co.c, co.c.newID(kindSurface)}}
	if err := co.c.request("wl_compositor.create_surface", wire.NewMessage(co.id, compositorCreateSurface).PutUint(s.id)); err != nil {
		return nil, err
	}
	return s, nil
}

// Surface is a wl_surface.
type Surface struct {
	object
}

// Attach sets the pending buffer. A nil buffer detaches.
func (s *Surface) Attach(b *Buffer, x, y int32) error {
	var bid uint32
	if b != nil {
		bid = b.id
	}
	m := wire.NewMessage(s.id, surfaceAttach).
		PutUint(bid).
		PutInt(x).
		PutInt(y)
	return s.c.request("wl_surface.attach", m)
}

// Damage marks the whole pending buffer dirty when called with a
// surface-sized rectangle.
func (s *Surface) Damage(x, y, width, height int32) error {
	m := wire.NewMessage(s.id, surfaceDamage).
		PutInt(x).
		PutInt(y).
		PutInt(width).
		PutInt(height)
	return s.c.request("wl_surface.damage", m)
}

// SetBufferTransform declares the transform already applied to the
// buffer contents, one of the wl_output transform values.
func (s *Surface) SetBufferTransform(transform int32) error {
	return s.c.request("wl_surface.set_buffer_transform", wire.NewMessage(s.id, surfaceSetBufferTransform).PutInt(transform))
}

// SetBufferScale declares the integer scale of the buffer contents.
func (s *Surface) SetBufferScale(scale int32) error {
	return s.c.request("wl_surface.set_buffer_scale", wire.NewMessage(s.id, surfaceSetBufferScale).PutInt(scale))
}

// Commit applies the pending state.
func (s *Surface) Commit() error {
	return s.c.request("wl_surface.commit", wire.NewMessage(s.id, surfaceCommit))
}

// Destroy destroys the surface.
func (s *Surface) Destroy() error {
	return s.c.request("wl_surface.destroy", wire.NewMessage(s.id, surfaceDestroy))
}
