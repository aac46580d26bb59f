// Package wltest runs a scripted Wayland compositor on one end of a
// socketpair so protocol-level components can be tested against real
// message traffic. The fake advertises a configurable set of globals,
// answers the requests this tool issues, and records everything it sees
// for inspection by the test.
package wltest

import (
	"encoding/binary"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"
)

// FillPixel is the value written into every pixel of a copied frame.
const FillPixel uint32 = 0xff2e3440

// Handy input codes for tests.
const (
	BtnLeft uint32 = 0x110
	KeyEsc  uint32 = 1
)

// OutputConfig describes one advertised output.
type OutputConfig struct {
	Name      string
	Width     int32 // current mode, physical pixels
	Height    int32
	Scale     int32 // integer scale, 0 means 1
	Transform int32
	X         int32 // position, logical coordinates
	Y         int32

	// Logical size for xdg-output. Zero derives Width/Scale.
	LogicalWidth  int32
	LogicalHeight int32
}

func (o OutputConfig) scale() int32 {
	if o.Scale < 1 {
		return 1
	}
	return o.Scale
}

func (o OutputConfig) logicalSize() (int32, int32) {
	w, h := o.LogicalWidth, o.LogicalHeight
	if w == 0 {
		w = o.Width / o.scale()
	}
	if h == 0 {
		h = o.Height / o.scale()
	}
	return w, h
}

// Options configures the fake compositor.
type Options struct {
	Outputs []OutputConfig

	// Omit lists interface names to withhold from the registry.
	Omit []string

	// SeatCapabilities defaults to pointer|keyboard.
	SeatCapabilities uint32

	// ScreencopyVersion is the advertised manager version, default 3.
	ScreencopyVersion uint32

	// FailCapture answers the copy request with failed for the named
	// outputs.
	FailCapture map[string]bool

	// HoldFrames queues copy completions until ReleaseFrames is called.
	HoldFrames bool

	// ManualConfigure suppresses the automatic configure on the first
	// surface commit; tests drive it with SendConfigure.
	ManualConfigure bool
}

type kind int

const (
	kindNone kind = iota
	kindRegistry
	kindCompositor
	kindSurface
	kindShm
	kindPool
	kindBuffer
	kindSeat
	kindPointer
	kindKeyboard
	kindOutput
	kindXdgManager
	kindXdgOutput
	kindViewporter
	kindViewport
	kindFScaleManager
	kindFScale
	kindLayerShell
	kindLayerSurface
	kindScreencopyMgr
	kindFrame
)

// Request opcodes, client to server.
const (
	reqDisplaySync        = 0
	reqDisplayGetRegistry = 1

	reqRegistryBind = 0

	reqCompositorCreateSurface = 0

	reqSurfaceDestroy            = 0
	reqSurfaceAttach             = 1
	reqSurfaceDamage             = 2
	reqSurfaceCommit             = 6
	reqSurfaceSetBufferTransform = 7
	reqSurfaceSetBufferScale     = 8

	reqShmCreatePool = 0

	reqPoolCreateBuffer = 0
	reqPoolDestroy      = 1

	reqBufferDestroy = 0

	reqSeatGetPointer  = 0
	reqSeatGetKeyboard = 1

	reqXdgMgrDestroy      = 0
	reqXdgMgrGetXdgOutput = 1

	reqXdgOutputDestroy = 0

	reqViewporterGetViewport = 1

	reqViewportDestroy        = 0
	reqViewportSetSource      = 1
	reqViewportSetDestination = 2

	reqFScaleMgrGetScale = 1

	reqFScaleDestroy = 0

	reqLayerShellGetLayerSurface = 0

	reqLayerSetSize                  = 0
	reqLayerSetAnchor                = 1
	reqLayerSetExclusiveZone         = 2
	reqLayerSetMargin                = 3
	reqLayerSetKeyboardInteractivity = 4
	reqLayerAckConfigure             = 6
	reqLayerDestroy                  = 7

	reqScreencopyCaptureOutput = 0
	reqScreencopyDestroy       = 2

	reqFrameCopy    = 0
	reqFrameDestroy = 1
)

// Event opcodes, server to client.
const (
	evtDisplayDeleteID = 1

	evtRegistryGlobal = 0

	evtCallbackDone = 0

	evtShmFormat = 0

	evtSeatCapabilities = 0
	evtSeatName         = 1

	evtPointerButton = 3

	evtKeyboardKeymap = 0
	evtKeyboardKey    = 3

	evtOutputGeometry = 0
	evtOutputMode     = 1
	evtOutputDone     = 2
	evtOutputScale    = 3
	evtOutputName     = 4

	evtXdgLogicalPosition = 0
	evtXdgLogicalSize     = 1

	evtLayerConfigure = 0
	evtLayerClosed    = 1

	evtFrameBuffer     = 0
	evtFrameFlags      = 1
	evtFrameReady      = 2
	evtFrameFailed     = 3
	evtFrameBufferDone = 6

	evtFScalePreferred = 0
)

type advertised struct {
	name    uint32
	iface   string
	version uint32
	output  int // index into Outputs, -1 for singletons
}

type poolState struct {
	id   uint32
	size int32
	data []byte
}

type bufferState struct {
	id        uint32
	pool      *poolState
	offset    int32
	width     int32
	height    int32
	stride    int32
	format    uint32
	destroyed bool
}

type surfaceState struct {
	id              uint32
	pending         uint32 // attached, not yet committed
	commits         []uint32
	bufferScale     int32
	bufferTransform int32
	damages         int
	viewport        *viewportState
	destroyed       bool
}

type viewportState struct {
	id        uint32
	surface   uint32
	srcSet    bool
	dstWidth  int32
	dstHeight int32
	destroyed bool
}

type fscaleState struct {
	id        uint32
	surface   uint32
	destroyed bool
}

type layerState struct {
	id         uint32
	surface    uint32
	output     string
	layer      uint32
	namespace  string
	width      uint32
	height     uint32
	anchor     uint32
	exclusive  int32
	kbMode     uint32
	acks       []uint32
	configured bool
	destroyed  bool
}

type frameState struct {
	id            uint32
	output        OutputConfig
	overlayCursor bool
	copied        bool
	copyBuffer    uint32
	completed     bool
	failed        bool
	destroyed     bool
}

// Compositor is the server side of the pair. All exported methods are
// safe to call from the test goroutine while the client runs.
type Compositor struct {
	t    *testing.T
	opts Options
	conn *wire.Conn
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	serial  uint32
	kinds   map[uint32]kind
	globals []advertised

	outputGlobals map[uint32]OutputConfig // registry name to config
	outputObjs    map[uint32]OutputConfig // object id to config

	screencopyBound uint32
	pointer         uint32
	keyboard        uint32

	pools    []*poolState
	buffers  map[uint32]*bufferState
	surfaces []*surfaceState
	layers   []*layerState
	fscales  []*fscaleState
	frames   []*frameState
	held     []*frameState
}

// Start wires a fake compositor to a fresh client over a socketpair.
// Both ends are torn down with the test.
func Start(t *testing.T, opts Options) (*Compositor, *wlclient.Client) {
	t.Helper()
	if opts.ScreencopyVersion == 0 {
		opts.ScreencopyVersion = 3
	}
	if opts.SeatCapabilities == 0 {
		opts.SeatCapabilities = wlclient.SeatCapabilityPointer | wlclient.SeatCapabilityKeyboard
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	client := wlclient.NewClient(pairConn(t, fds[0]))

	c := &Compositor{
		t:             t,
		opts:          opts,
		conn:          pairConn(t, fds[1]),
		done:          make(chan struct{}),
		kinds:         make(map[uint32]kind),
		outputGlobals: make(map[uint32]OutputConfig),
		outputObjs:    make(map[uint32]OutputConfig),
		buffers:       make(map[uint32]*bufferState),
	}
	c.buildGlobals()
	go c.serve()

	t.Cleanup(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		client.Close()
		c.conn.Close()
		<-c.done
		c.mu.Lock()
		for _, p := range c.pools {
			if p.data != nil {
				unix.Munmap(p.data)
				p.data = nil
			}
		}
		c.mu.Unlock()
	})
	return c, client
}

func pairConn(t *testing.T, fd int) *wire.Conn {
	t.Helper()
	f := os.NewFile(uintptr(fd), "wltest")
	defer f.Close()
	nc, err := net.FileConn(f)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	return wire.New(nc.(*net.UnixConn))
}

func (c *Compositor) buildGlobals() {
	omitted := func(iface string) bool {
		for _, o := range c.opts.Omit {
			if o == iface {
				return true
			}
		}
		return false
	}
	name := uint32(0)
	add := func(iface string, version uint32, output int) {
		if omitted(iface) {
			return
		}
		name++
		g := advertised{name: name, iface: iface, version: version, output: output}
		c.globals = append(c.globals, g)
		if output >= 0 {
			c.outputGlobals[name] = c.opts.Outputs[output]
		}
	}
	add(wlclient.InterfaceCompositor, 4, -1)
	add(wlclient.InterfaceShm, 1, -1)
	add(wlclient.InterfaceSeat, 5, -1)
	add(wlclient.InterfaceLayerShell, 4, -1)
	add(wlclient.InterfaceScreencopyManager, c.opts.ScreencopyVersion, -1)
	add(wlclient.InterfaceViewporter, 1, -1)
	add(wlclient.InterfaceFractionalScaleMgr, 1, -1)
	add(wlclient.InterfaceXdgOutputManager, 3, -1)
	for i := range c.opts.Outputs {
		add(wlclient.InterfaceOutput, 4, i)
	}
}

func (c *Compositor) serve() {
	defer close(c.done)
	for {
		m, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(m)
	}
}

func (c *Compositor) send(m *wire.Message) {
	if err := c.conn.WriteMessage(m); err != nil && !c.closed {
		c.t.Errorf("wltest: write: %v", err)
	}
}

func (c *Compositor) deleteID(id uint32) {
	delete(c.kinds, id)
	c.send(wire.NewMessage(1, evtDisplayDeleteID).PutUint(id))
}

func (c *Compositor) nextSerial() uint32 {
	c.serial++
	return c.serial
}

func (c *Compositor) dispatch(m *wire.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.Object == 1 {
		c.handleDisplay(m)
	} else {
		switch c.kinds[m.Object] {
		case kindRegistry:
			c.handleRegistry(m)
		case kindCompositor:
			c.handleCompositor(m)
		case kindSurface:
			c.handleSurface(m)
		case kindShm:
			c.handleShm(m)
		case kindPool:
			c.handlePool(m)
		case kindBuffer:
			c.handleBuffer(m)
		case kindSeat:
			c.handleSeat(m)
		case kindOutput:
			// release, nothing to track
		case kindXdgManager:
			c.handleXdgManager(m)
		case kindXdgOutput:
			c.handleXdgOutput(m)
		case kindViewporter:
			c.handleViewporter(m)
		case kindViewport:
			c.handleViewport(m)
		case kindFScaleManager:
			c.handleFScaleManager(m)
		case kindFScale:
			c.handleFScale(m)
		case kindLayerShell:
			c.handleLayerShell(m)
		case kindLayerSurface:
			c.handleLayerSurface(m)
		case kindScreencopyMgr:
			c.handleScreencopyManager(m)
		case kindFrame:
			c.handleFrame(m)
		default:
			c.t.Errorf("wltest: request op %d for unknown object %d", m.Opcode, m.Object)
			return
		}
	}
	if err := m.Err(); err != nil {
		c.t.Errorf("wltest: malformed request op %d on object %d: %v", m.Opcode, m.Object, err)
	}
}

func (c *Compositor) handleDisplay(m *wire.Message) {
	switch m.Opcode {
	case reqDisplaySync:
		cb := m.Uint()
		c.send(wire.NewMessage(cb, evtCallbackDone).PutUint(c.nextSerial()))
		c.send(wire.NewMessage(1, evtDisplayDeleteID).PutUint(cb))
	case reqDisplayGetRegistry:
		id := m.Uint()
		c.kinds[id] = kindRegistry
		for _, g := range c.globals {
			c.send(wire.NewMessage(id, evtRegistryGlobal).
				PutUint(g.name).
				PutString(g.iface).
				PutUint(g.version))
		}
	default:
		c.t.Errorf("wltest: unexpected wl_display request %d", m.Opcode)
	}
}

func (c *Compositor) handleRegistry(m *wire.Message) {
	if m.Opcode != reqRegistryBind {
		c.t.Errorf("wltest: unexpected wl_registry request %d", m.Opcode)
		return
	}
	name := m.Uint()
	iface := m.Str()
	version := m.Uint()
	id := m.Uint()
	if m.Err() != nil {
		return
	}

	var adv *advertised
	for i := range c.globals {
		if c.globals[i].name == name {
			adv = &c.globals[i]
			break
		}
	}
	if adv == nil || adv.iface != iface {
		c.t.Errorf("wltest: bind of %q with name %d does not match an advertised global", iface, name)
		return
	}
	if version > adv.version {
		c.t.Errorf("wltest: bind of %q requested version %d above advertised %d", iface, version, adv.version)
	}

	switch iface {
	case wlclient.InterfaceCompositor:
		c.kinds[id] = kindCompositor
	case wlclient.InterfaceShm:
		c.kinds[id] = kindShm
		c.send(wire.NewMessage(id, evtShmFormat).PutUint(wlclient.FormatArgb8888))
		c.send(wire.NewMessage(id, evtShmFormat).PutUint(wlclient.FormatXrgb8888))
	case wlclient.InterfaceSeat:
		c.kinds[id] = kindSeat
		c.send(wire.NewMessage(id, evtSeatCapabilities).PutUint(c.opts.SeatCapabilities))
		if version >= 2 {
			c.send(wire.NewMessage(id, evtSeatName).PutString("seat0"))
		}
	case wlclient.InterfaceOutput:
		c.kinds[id] = kindOutput
		cfg := c.outputGlobals[name]
		c.outputObjs[id] = cfg
		c.sendOutputBurst(id, version, cfg)
	case wlclient.InterfaceLayerShell:
		c.kinds[id] = kindLayerShell
	case wlclient.InterfaceScreencopyManager:
		c.kinds[id] = kindScreencopyMgr
		c.screencopyBound = version
	case wlclient.InterfaceViewporter:
		c.kinds[id] = kindViewporter
	case wlclient.InterfaceFractionalScaleMgr:
		c.kinds[id] = kindFScaleManager
	case wlclient.InterfaceXdgOutputManager:
		c.kinds[id] = kindXdgManager
	default:
		c.t.Errorf("wltest: bind of unhandled interface %q", iface)
	}
}

func (c *Compositor) sendOutputBurst(id, version uint32, cfg OutputConfig) {
	c.send(wire.NewMessage(id, evtOutputGeometry).
		PutInt(cfg.X).
		PutInt(cfg.Y).
		PutInt(cfg.Width / 4).
		PutInt(cfg.Height / 4).
		PutInt(0).
		PutString("wltest").
		PutString(cfg.Name).
		PutInt(cfg.Transform))
	c.send(wire.NewMessage(id, evtOutputMode).
		PutUint(wlclient.ModeCurrent | wlclient.ModePreferred).
		PutInt(cfg.Width).
		PutInt(cfg.Height).
		PutInt(60000))
	if version >= 2 {
		c.send(wire.NewMessage(id, evtOutputScale).PutInt(cfg.scale()))
	}
	if version >= 4 && cfg.Name != "" {
		c.send(wire.NewMessage(id, evtOutputName).PutString(cfg.Name))
	}
	if version >= 2 {
		c.send(wire.NewMessage(id, evtOutputDone))
	}
}

func (c *Compositor) handleCompositor(m *wire.Message) {
	if m.Opcode != reqCompositorCreateSurface {
		c.t.Errorf("wltest: unexpected wl_compositor request %d", m.Opcode)
		return
	}
	id := m.Uint()
	c.kinds[id] = kindSurface
	c.surfaces = append(c.surfaces, &surfaceState{id: id, bufferScale: 1})
}

func (c *Compositor) surfaceByID(id uint32) *surfaceState {
	for _, s := range c.surfaces {
		if s.id == id {
			return s
		}
	}
	return nil
}

func (c *Compositor) layerForSurface(surface uint32) *layerState {
	for _, l := range c.layers {
		if l.surface == surface && !l.destroyed {
			return l
		}
	}
	return nil
}

func (c *Compositor) handleSurface(m *wire.Message) {
	s := c.surfaceByID(m.Object)
	if s == nil {
		c.t.Errorf("wltest: request for untracked surface %d", m.Object)
		return
	}
	switch m.Opcode {
	case reqSurfaceDestroy:
		s.destroyed = true
		c.deleteID(s.id)
	case reqSurfaceAttach:
		s.pending = m.Uint()
		m.Int()
		m.Int()
	case reqSurfaceDamage:
		m.Int()
		m.Int()
		m.Int()
		m.Int()
		s.damages++
	case reqSurfaceCommit:
		s.commits = append(s.commits, s.pending)
		if l := c.layerForSurface(s.id); l != nil && !l.configured && !c.opts.ManualConfigure {
			l.configured = true
			c.send(wire.NewMessage(l.id, evtLayerConfigure).
				PutUint(c.nextSerial()).
				PutUint(l.width).
				PutUint(l.height))
		}
	case reqSurfaceSetBufferTransform:
		s.bufferTransform = m.Int()
	case reqSurfaceSetBufferScale:
		s.bufferScale = m.Int()
	default:
		c.t.Errorf("wltest: unexpected wl_surface request %d", m.Opcode)
	}
}

func (c *Compositor) handleShm(m *wire.Message) {
	if m.Opcode != reqShmCreatePool {
		c.t.Errorf("wltest: unexpected wl_shm request %d", m.Opcode)
		return
	}
	id := m.Uint()
	size := m.Int()
	fd, ok := c.conn.TakeFd()
	if !ok {
		c.t.Errorf("wltest: create_pool without an fd")
		return
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	unix.Close(fd)
	if err != nil {
		c.t.Errorf("wltest: mmap pool: %v", err)
		data = nil
	}
	c.kinds[id] = kindPool
	c.pools = append(c.pools, &poolState{id: id, size: size, data: data})
}

func (c *Compositor) poolByID(id uint32) *poolState {
	for _, p := range c.pools {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (c *Compositor) handlePool(m *wire.Message) {
	p := c.poolByID(m.Object)
	if p == nil {
		c.t.Errorf("wltest: request for untracked pool %d", m.Object)
		return
	}
	switch m.Opcode {
	case reqPoolCreateBuffer:
		id := m.Uint()
		b := &bufferState{
			id:     id,
			pool:   p,
			offset: m.Int(),
			width:  m.Int(),
			height: m.Int(),
			stride: m.Int(),
			format: m.Uint(),
		}
		c.kinds[id] = kindBuffer
		c.buffers[id] = b
	case reqPoolDestroy:
		c.deleteID(p.id)
	default:
		c.t.Errorf("wltest: unexpected wl_shm_pool request %d", m.Opcode)
	}
}

func (c *Compositor) handleBuffer(m *wire.Message) {
	if m.Opcode != reqBufferDestroy {
		c.t.Errorf("wltest: unexpected wl_buffer request %d", m.Opcode)
		return
	}
	if b := c.buffers[m.Object]; b != nil {
		b.destroyed = true
	}
	c.deleteID(m.Object)
}

func (c *Compositor) handleSeat(m *wire.Message) {
	switch m.Opcode {
	case reqSeatGetPointer:
		id := m.Uint()
		c.kinds[id] = kindPointer
		c.pointer = id
	case reqSeatGetKeyboard:
		id := m.Uint()
		c.kinds[id] = kindKeyboard
		c.keyboard = id
		c.sendKeymap(id)
	default:
		c.t.Errorf("wltest: unexpected wl_seat request %d", m.Opcode)
	}
}

func (c *Compositor) sendKeymap(keyboard uint32) {
	f, err := os.CreateTemp("", "wltest-keymap-")
	if err != nil {
		c.t.Errorf("wltest: keymap temp file: %v", err)
		return
	}
	os.Remove(f.Name())
	content := []byte("xkb_keymap { };\x00")
	if _, err := f.Write(content); err != nil {
		c.t.Errorf("wltest: keymap write: %v", err)
		f.Close()
		return
	}
	c.send(wire.NewMessage(keyboard, evtKeyboardKeymap).
		PutUint(1).
		PutFd(int(f.Fd())).
		PutUint(uint32(len(content))))
	f.Close()
}

func (c *Compositor) handleXdgManager(m *wire.Message) {
	switch m.Opcode {
	case reqXdgMgrDestroy:
		c.deleteID(m.Object)
	case reqXdgMgrGetXdgOutput:
		id := m.Uint()
		outID := m.Uint()
		cfg, ok := c.outputObjs[outID]
		if !ok {
			c.t.Errorf("wltest: get_xdg_output for unknown output %d", outID)
			return
		}
		c.kinds[id] = kindXdgOutput
		lw, lh := cfg.logicalSize()
		c.send(wire.NewMessage(id, evtXdgLogicalPosition).PutInt(cfg.X).PutInt(cfg.Y))
		c.send(wire.NewMessage(id, evtXdgLogicalSize).PutInt(lw).PutInt(lh))
	default:
		c.t.Errorf("wltest: unexpected zxdg_output_manager_v1 request %d", m.Opcode)
	}
}

func (c *Compositor) handleXdgOutput(m *wire.Message) {
	if m.Opcode != reqXdgOutputDestroy {
		c.t.Errorf("wltest: unexpected zxdg_output_v1 request %d", m.Opcode)
		return
	}
	c.deleteID(m.Object)
}

func (c *Compositor) handleViewporter(m *wire.Message) {
	if m.Opcode != reqViewporterGetViewport {
		c.t.Errorf("wltest: unexpected wp_viewporter request %d", m.Opcode)
		return
	}
	id := m.Uint()
	sid := m.Uint()
	s := c.surfaceByID(sid)
	if s == nil {
		c.t.Errorf("wltest: get_viewport for unknown surface %d", sid)
		return
	}
	vp := &viewportState{id: id, surface: sid}
	s.viewport = vp
	c.kinds[id] = kindViewport
}

func (c *Compositor) viewportByID(id uint32) *viewportState {
	for _, s := range c.surfaces {
		if s.viewport != nil && s.viewport.id == id {
			return s.viewport
		}
	}
	return nil
}

func (c *Compositor) handleViewport(m *wire.Message) {
	vp := c.viewportByID(m.Object)
	if vp == nil {
		c.t.Errorf("wltest: request for untracked viewport %d", m.Object)
		return
	}
	switch m.Opcode {
	case reqViewportDestroy:
		vp.destroyed = true
		c.deleteID(vp.id)
	case reqViewportSetSource:
		m.Fixed()
		m.Fixed()
		m.Fixed()
		m.Fixed()
		vp.srcSet = true
	case reqViewportSetDestination:
		vp.dstWidth = m.Int()
		vp.dstHeight = m.Int()
	default:
		c.t.Errorf("wltest: unexpected wp_viewport request %d", m.Opcode)
	}
}

func (c *Compositor) handleFScaleManager(m *wire.Message) {
	if m.Opcode != reqFScaleMgrGetScale {
		c.t.Errorf("wltest: unexpected wp_fractional_scale_manager_v1 request %d", m.Opcode)
		return
	}
	id := m.Uint()
	sid := m.Uint()
	c.kinds[id] = kindFScale
	c.fscales = append(c.fscales, &fscaleState{id: id, surface: sid})
}

func (c *Compositor) handleFScale(m *wire.Message) {
	if m.Opcode != reqFScaleDestroy {
		c.t.Errorf("wltest: unexpected wp_fractional_scale_v1 request %d", m.Opcode)
		return
	}
	for _, f := range c.fscales {
		if f.id == m.Object {
			f.destroyed = true
		}
	}
	c.deleteID(m.Object)
}

func (c *Compositor) handleLayerShell(m *wire.Message) {
	if m.Opcode != reqLayerShellGetLayerSurface {
		c.t.Errorf("wltest: unexpected zwlr_layer_shell_v1 request %d", m.Opcode)
		return
	}
	id := m.Uint()
	sid := m.Uint()
	outID := m.Uint()
	layer := m.Uint()
	ns := m.Str()
	c.kinds[id] = kindLayerSurface
	c.layers = append(c.layers, &layerState{
		id:        id,
		surface:   sid,
		output:    c.outputObjs[outID].Name,
		layer:     layer,
		namespace: ns,
	})
}

func (c *Compositor) layerByID(id uint32) *layerState {
	for _, l := range c.layers {
		if l.id == id {
			return l
		}
	}
	return nil
}

func (c *Compositor) handleLayerSurface(m *wire.Message) {
	l := c.layerByID(m.Object)
	if l == nil {
		c.t.Errorf("wltest: request for untracked layer surface %d", m.Object)
		return
	}
	switch m.Opcode {
	case reqLayerSetSize:
		l.width = m.Uint()
		l.height = m.Uint()
	case reqLayerSetAnchor:
		l.anchor = m.Uint()
	case reqLayerSetExclusiveZone:
		l.exclusive = m.Int()
	case reqLayerSetMargin:
		m.Int()
		m.Int()
		m.Int()
		m.Int()
	case reqLayerSetKeyboardInteractivity:
		l.kbMode = m.Uint()
	case reqLayerAckConfigure:
		l.acks = append(l.acks, m.Uint())
	case reqLayerDestroy:
		l.destroyed = true
		c.deleteID(l.id)
	default:
		c.t.Errorf("wltest: unexpected zwlr_layer_surface_v1 request %d", m.Opcode)
	}
}

func (c *Compositor) handleScreencopyManager(m *wire.Message) {
	switch m.Opcode {
	case reqScreencopyCaptureOutput:
		id := m.Uint()
		cursor := m.Int()
		outID := m.Uint()
		cfg, ok := c.outputObjs[outID]
		if !ok {
			c.t.Errorf("wltest: capture_output for unknown output %d", outID)
			return
		}
		f := &frameState{id: id, output: cfg, overlayCursor: cursor == 1}
		c.kinds[id] = kindFrame
		c.frames = append(c.frames, f)
		c.send(wire.NewMessage(id, evtFrameBuffer).
			PutUint(wlclient.FormatXrgb8888).
			PutUint(uint32(cfg.Width)).
			PutUint(uint32(cfg.Height)).
			PutUint(uint32(cfg.Width * 4)))
		if c.screencopyBound >= 3 {
			c.send(wire.NewMessage(id, evtFrameBufferDone))
		}
	case reqScreencopyDestroy:
		c.deleteID(m.Object)
	default:
		c.t.Errorf("wltest: unexpected zwlr_screencopy_manager_v1 request %d", m.Opcode)
	}
}

func (c *Compositor) frameByID(id uint32) *frameState {
	for _, f := range c.frames {
		if f.id == id {
			return f
		}
	}
	return nil
}

func (c *Compositor) handleFrame(m *wire.Message) {
	f := c.frameByID(m.Object)
	if f == nil {
		c.t.Errorf("wltest: request for untracked frame %d", m.Object)
		return
	}
	switch m.Opcode {
	case reqFrameCopy:
		f.copied = true
		f.copyBuffer = m.Uint()
		if c.opts.HoldFrames {
			c.held = append(c.held, f)
			return
		}
		c.finishFrame(f)
	case reqFrameDestroy:
		f.destroyed = true
		c.deleteID(f.id)
	default:
		c.t.Errorf("wltest: unexpected zwlr_screencopy_frame_v1 request %d", m.Opcode)
	}
}

func (c *Compositor) finishFrame(f *frameState) {
	if c.opts.FailCapture[f.output.Name] {
		f.failed = true
		c.send(wire.NewMessage(f.id, evtFrameFailed))
		return
	}
	c.fillBuffer(f.copyBuffer)
	c.send(wire.NewMessage(f.id, evtFrameFlags).PutUint(0))
	f.completed = true
	c.send(wire.NewMessage(f.id, evtFrameReady).
		PutUint(0).
		PutUint(uint32(time.Now().Unix())).
		PutUint(0))
}

// fillBuffer writes FillPixel into the whole buffer through the shared
// mapping, the way a compositor copies a frame.
func (c *Compositor) fillBuffer(id uint32) {
	b := c.buffers[id]
	if b == nil {
		c.t.Errorf("wltest: copy into unknown buffer %d", id)
		return
	}
	if b.pool.data == nil {
		return
	}
	end := int(b.offset) + int(b.height)*int(b.stride)
	if end > len(b.pool.data) {
		c.t.Errorf("wltest: buffer %d overruns its pool (%d > %d)", id, end, len(b.pool.data))
		return
	}
	for y := int32(0); y < b.height; y++ {
		row := b.pool.data[b.offset+y*b.stride:]
		for x := int32(0); x < b.width; x++ {
			binary.LittleEndian.PutUint32(row[x*4:], FillPixel)
		}
	}
}
