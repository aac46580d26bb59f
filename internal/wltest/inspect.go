package wltest

import (
	"time"

	"github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"
)

// FrameInfo is a snapshot of one screencopy frame the client created.
type FrameInfo struct {
	Output        string
	OverlayCursor bool
	Copied        bool
	Completed     bool
	Failed        bool
	Destroyed     bool
}

// Frames snapshots all frames in creation order.
func (c *Compositor) Frames() []FrameInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FrameInfo, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, FrameInfo{
			Output:        f.output.Name,
			OverlayCursor: f.overlayCursor,
			Copied:        f.copied,
			Completed:     f.completed,
			Failed:        f.failed,
			Destroyed:     f.destroyed,
		})
	}
	return out
}

// LayerSurfaceInfo is a snapshot of one layer surface.
type LayerSurfaceInfo struct {
	Output        string
	Namespace     string
	Layer         uint32
	Width         uint32
	Height        uint32
	Anchor        uint32
	ExclusiveZone int32
	KeyboardMode  uint32
	Acks          int
	Configured    bool
	Destroyed     bool
}

// LayerSurfaces snapshots all layer surfaces in creation order.
func (c *Compositor) LayerSurfaces() []LayerSurfaceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LayerSurfaceInfo, 0, len(c.layers))
	for _, l := range c.layers {
		out = append(out, LayerSurfaceInfo{
			Output:        l.output,
			Namespace:     l.namespace,
			Layer:         l.layer,
			Width:         l.width,
			Height:        l.height,
			Anchor:        l.anchor,
			ExclusiveZone: l.exclusive,
			KeyboardMode:  l.kbMode,
			Acks:          len(l.acks),
			Configured:    l.configured,
			Destroyed:     l.destroyed,
		})
	}
	return out
}

// SurfaceInfo is a snapshot of one wl_surface.
type SurfaceInfo struct {
	Commits         int
	LastBuffer      uint32 // buffer attached at the latest commit, 0 for none
	BufferScale     int32
	BufferTransform int32
	ViewportSource  bool
	ViewportWidth   int32
	ViewportHeight  int32
	Destroyed       bool
}

// Surfaces snapshots all wl_surfaces in creation order.
func (c *Compositor) Surfaces() []SurfaceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SurfaceInfo, 0, len(c.surfaces))
	for _, s := range c.surfaces {
		info := SurfaceInfo{
			Commits:         len(s.commits),
			BufferScale:     s.bufferScale,
			BufferTransform: s.bufferTransform,
			Destroyed:       s.destroyed,
		}
		if len(s.commits) > 0 {
			info.LastBuffer = s.commits[len(s.commits)-1]
		}
		if s.viewport != nil {
			info.ViewportSource = s.viewport.srcSet
			info.ViewportWidth = s.viewport.dstWidth
			info.ViewportHeight = s.viewport.dstHeight
		}
		out = append(out, info)
	}
	return out
}

// BufferInfo is a snapshot of one wl_buffer.
type BufferInfo struct {
	Width     int32
	Height    int32
	Stride    int32
	Format    uint32
	Destroyed bool
}

// Buffers snapshots all wl_buffers keyed by their creation id.
func (c *Compositor) Buffers() map[uint32]BufferInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint32]BufferInfo, len(c.buffers))
	for id, b := range c.buffers {
		out[id] = BufferInfo{
			Width:     b.width,
			Height:    b.height,
			Stride:    b.stride,
			Format:    b.format,
			Destroyed: b.destroyed,
		}
	}
	return out
}

// PoolSizes lists the sizes of all pools in creation order.
func (c *Compositor) PoolSizes() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int32, 0, len(c.pools))
	for _, p := range c.pools {
		out = append(out, p.size)
	}
	return out
}

// Devices reports which input devices the client has requested.
func (c *Compositor) Devices() (pointer, keyboard bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pointer != 0, c.keyboard != 0
}

// SendButton injects a pointer button event.
func (c *Compositor) SendButton(button, state uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pointer == 0 {
		c.t.Errorf("wltest: SendButton with no pointer bound")
		return
	}
	s := c.nextSerial()
	c.send(wire.NewMessage(c.pointer, evtPointerButton).
		PutUint(s).
		PutUint(s).
		PutUint(button).
		PutUint(state))
}

// Click injects a press and release of the given button.
func (c *Compositor) Click(button uint32) {
	c.SendButton(button, 1)
	c.SendButton(button, 0)
}

// SendKey injects a keyboard key event. Key is a raw evdev code.
func (c *Compositor) SendKey(key, state uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyboard == 0 {
		c.t.Errorf("wltest: SendKey with no keyboard bound")
		return
	}
	s := c.nextSerial()
	c.send(wire.NewMessage(c.keyboard, evtKeyboardKey).
		PutUint(s).
		PutUint(s).
		PutUint(key).
		PutUint(state))
}

// SendPreferredScale injects a preferred_scale on the i-th fractional
// scale object, as a numerator over 120.
func (c *Compositor) SendPreferredScale(i int, numerator uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.fscales) {
		c.t.Errorf("wltest: SendPreferredScale index %d out of range (%d objects)", i, len(c.fscales))
		return
	}
	c.send(wire.NewMessage(c.fscales[i].id, evtFScalePreferred).PutUint(numerator))
}

// SendConfigure sends a configure on the i-th layer surface with its
// last requested size. Pairs with the ManualConfigure option.
func (c *Compositor) SendConfigure(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.layers) {
		c.t.Errorf("wltest: SendConfigure index %d out of range (%d surfaces)", i, len(c.layers))
		return
	}
	l := c.layers[i]
	l.configured = true
	c.send(wire.NewMessage(l.id, evtLayerConfigure).
		PutUint(c.nextSerial()).
		PutUint(l.width).
		PutUint(l.height))
}

// CloseLayer sends closed on the i-th layer surface.
func (c *Compositor) CloseLayer(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.layers) {
		c.t.Errorf("wltest: CloseLayer index %d out of range (%d surfaces)", i, len(c.layers))
		return
	}
	c.send(wire.NewMessage(c.layers[i].id, evtLayerClosed))
}

// ReleaseFrames completes all copies held back by HoldFrames.
func (c *Compositor) ReleaseFrames() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.held {
		c.finishFrame(f)
	}
	c.held = nil
}

// Eventually polls cond until it holds, failing the test after three
// seconds.
func (c *Compositor) Eventually(cond func() bool, what string) {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	c.t.Fatalf("wltest: timed out waiting for %s", what)
}
