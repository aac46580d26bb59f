package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

// zwlr_layer_shell_v1 layers, bottom to top.
const (
	LayerBackground uint32 = 0
	LayerBottom     uint32 = 1
	LayerTop        uint32 = 2
	LayerOverlay    uint32 = 3
)

// zwlr_layer_surface_v1 anchor bits.
const (
	AnchorTop    uint32 = 1
	AnchorBottom uint32 = 2
	AnchorLeft   uint32 = 4
	AnchorRight  uint32 = 8
	AnchorAll           = AnchorTop | AnchorBottom | AnchorLeft | AnchorRight
)

// zwlr_layer_surface_v1 keyboard interactivity modes.
const (
	KeyboardInteractivityNone      uint32 = 0
	KeyboardInteractivityExclusive uint32 = 1
	KeyboardInteractivityOnDemand  uint32 = 2
)

const (
	layerShellGetLayerSurface = 0

	layerSurfaceSetSize                  = 0
	layerSurfaceSetAnchor                = 1
	layerSurfaceSetExclusiveZone         = 2
	layerSurfaceSetMargin                = 3
	layerSurfaceSetKeyboardInteractivity = 4
	layerSurfaceAckConfigure             = 6
	layerSurfaceDestroy                  = 7

	layerSurfaceEvtConfigure = 0
	layerSurfaceEvtClosed    = 1
)

// LayerShell is the zwlr_layer_shell_v1 global.
type LayerShell struct {
	object
}

// GetLayerSurface assigns the layer surface role to a surface, pinned
// to the given output. The namespace identifies the client to
// compositor policy rules.
func (l *LayerShell) GetLayerSurface(s *Surface, output *Output, layer uint32, namespace string) (*LayerSurface, error) {
	ls := &LayerSurface{object{l.c, l.c.newID(kindLayerSurface)}}
	m := wire.NewMessage(l.id, layerShellGetLayerSurface).
		PutUint(ls.id).
		PutUint(s.id).
		PutUint(output.id).
		PutUint(layer).
		PutString(namespace)
	if err := l.c.request("zwlr_layer_shell_v1.get_layer_surface", m); err != nil {
		return nil, err
	}
	return ls, nil
}

// LayerSurface is a zwlr_layer_surface_v1. State set before the first
// commit takes effect with the configure round trip.
type LayerSurface struct {
	object
}

// LayerConfigureEvent tells the client to assume a size and answer with
// AckConfigure.
type LayerConfigureEvent struct {
	LayerSurface uint32
	Serial       uint32
	Width        uint32
	Height       uint32
}

func (LayerConfigureEvent) String() string { return "zwlr_layer_surface_v1.configure" }

// LayerClosedEvent means the compositor dropped the surface; the client
// must stop using it.
type LayerClosedEvent struct {
	LayerSurface uint32
}

func (LayerClosedEvent) String() string { return "zwlr_layer_surface_v1.closed" }

func decodeLayerSurface(m *wire.Message) Event {
	switch m.Opcode {
	case layerSurfaceEvtConfigure:
		return LayerConfigureEvent{
			LayerSurface: m.Object,
			Serial:       m.Uint(),
			Width:        m.Uint(),
			Height:       m.Uint(),
		}
	case layerSurfaceEvtClosed:
		return LayerClosedEvent{LayerSurface: m.Object}
	}
	return nil
}

// SetSize requests a surface size in logical pixels.
func (l *LayerSurface) SetSize(width, height uint32) error {
	m := wire.NewMessage(l.id, layerSurfaceSetSize).
		PutUint(width).
		PutUint(height)
	return l.c.request("zwlr_layer_surface_v1.set_size", m)
}

// SetAnchor anchors the surface to the given edges.
func (l *LayerSurface) SetAnchor(anchor uint32) error {
	return l.c.request("zwlr_layer_surface_v1.set_anchor", wire.NewMessage(l.id, layerSurfaceSetAnchor).PutUint(anchor))
}

// SetExclusiveZone controls interaction with other exclusive zones; -1
// means draw over panels and ignore them.
func (l *LayerSurface) SetExclusiveZone(zone int32) error {
	return l.c.request("zwlr_layer_surface_v1.set_exclusive_zone", wire.NewMessage(l.id, layerSurfaceSetExclusiveZone).PutInt(zone))
}

// SetKeyboardInteractivity sets how the surface takes keyboard focus.
func (l *LayerSurface) SetKeyboardInteractivity(mode uint32) error {
	return l.c.request("zwlr_layer_surface_v1.set_keyboard_interactivity", wire.NewMessage(l.id, layerSurfaceSetKeyboardInteractivity).PutUint(mode))
}

// AckConfigure acknowledges a configure event.
func (l *LayerSurface) AckConfigure(serial uint32) error {
	return l.c.request("zwlr_layer_surface_v1.ack_configure", wire.NewMessage(l.id, layerSurfaceAckConfigure).PutUint(serial))
}

// Destroy destroys the layer surface.
func (l *LayerSurface) Destroy() error {
	return l.c.request("zwlr_layer_surface_v1.destroy", wire.NewMessage(l.id, layerSurfaceDestroy))
}
