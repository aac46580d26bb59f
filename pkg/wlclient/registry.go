package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

// Interface names as they appear in registry advertisements.
const (
	InterfaceCompositor         = "wl_compositor"
	InterfaceShm                = "wl_shm"
	InterfaceSeat               = "wl_seat"
	InterfaceOutput             = "wl_output"
	InterfaceXdgOutputManager   = "zxdg_output_manager_v1"
	InterfaceLayerShell         = "zwlr_layer_shell_v1"
	InterfaceScreencopyManager  = "zwlr_screencopy_manager_v1"
	InterfaceViewporter         = "wp_viewporter"
	InterfaceFractionalScaleMgr = "wp_fractional_scale_manager_v1"
)

const registryBind = 0

// Registry is the wl_registry. Globals are announced as GlobalEvents;
// the Bind methods take the advertised name and the version to request,
// which must not exceed the advertised one.
type Registry struct {
	object
}

// GlobalEvent announces a global object.
type GlobalEvent struct {
	Registry  uint32
	Name      uint32
	Interface string
	Version   uint32
}

func (GlobalEvent) String() string { return "wl_registry.global" }

// GlobalRemoveEvent withdraws a global announced earlier.
type GlobalRemoveEvent struct {
	Registry uint32
	Name     uint32
}

func (GlobalRemoveEvent) String() string { return "wl_registry.global_remove" }

func decodeRegistry(m *wire.Message) Event {
	switch m.Opcode {
	case 0:
		return GlobalEvent{Registry: m.Object, Name: m.Uint(), Interface: m.Str(), Version: m.Uint()}
	case 1:
		return GlobalRemoveEvent{Registry: m.Object, Name: m.Uint()}
	}
	return nil
}

func (r *Registry) bind(name uint32, iface string, version uint32, kind objKind) (object, error) {
	id := r.c.newID(kind)
	m := wire.NewMessage(r.id, registryBind).
		PutUint(name).
		PutString(iface).
		PutUint(version).
		PutUint(id)
	if err := r.c.request("wl_registry.bind "+iface, m); err != nil {
		return object{}, err
	}
	return object{r.c, id}, nil
}

// BindCompositor binds a wl_compositor global.
func (r *Registry) BindCompositor(name, version uint32) (*Compositor, error) {
	o, err := r.bind(name, InterfaceCompositor, version, kindCompositor)
	if err != nil {
		return nil, err
	}
	return &Compositor{o}, nil
}

// BindShm binds a wl_shm global.
func (r *Registry) BindShm(name, version uint32) (*Shm, error) {
	o, err := r.bind(name, InterfaceShm, version, kindShm)
	if err != nil {
		return nil, err
	}
	return &Shm{o}, nil
}

// BindSeat binds a wl_seat global.
func (r *Registry) BindSeat(name, version uint32) (*Seat, error) {
	o, err := r.bind(name, InterfaceSeat, version, kindSeat)
	if err != nil {
		return nil, err
	}
	return &Seat{o}, nil
}

// BindOutput binds a wl_output global.
func (r *Registry) BindOutput(name, version uint32) (*Output, error) {
	o, err := r.bind(name, InterfaceOutput, version, kindOutput)
	if err != nil {
		return nil, err
	}
	return &Output{o, version}, nil
}

// BindXdgOutputManager binds a zxdg_output_manager_v1 global.
func (r *Registry) BindXdgOutputManager(name, version uint32) (*XdgOutputManager, error) {
	o, err := r.bind(name, InterfaceXdgOutputManager, version, kindXdgOutputManager)
	if err != nil {
		return nil, err
	}
	return &XdgOutputManager{o}, nil
}

// BindLayerShell binds a zwlr_layer_shell_v1 global.
func (r *Registry) BindLayerShell(name, version uint32) (*LayerShell, error) {
	o, err := r.bind(name, InterfaceLayerShell, version, kindLayerShell)
	if err != nil {
		return nil, err
	}
	return &LayerShell{o}, nil
}

// BindScreencopyManager binds a zwlr_screencopy_manager_v1 global.
func (r *Registry) BindScreencopyManager(name, version uint32) (*ScreencopyManager, error) {
	o, err := r.bind(name, InterfaceScreencopyManager, version, kindScreencopyManager)
	if err != nil {
		return nil, err
	}
	return &ScreencopyManager{o, version}, nil
}

// BindViewporter binds a wp_viewporter global.
func (r *Registry) BindViewporter(name, version uint32) (*Viewporter, error) {
	o, err := r.bind(name, InterfaceViewporter, version, kindViewporter)
	if err != nil {
		return nil, err
	}
	return &Viewporter{o}, nil
}

// BindFractionalScaleManager binds a wp_fractional_scale_manager_v1 global.
func (r *Registry) BindFractionalScaleManager(name, version uint32) (*FractionalScaleManager, error) {
	o, err := r.bind(name, InterfaceFractionalScaleMgr, version, kindFractionalScaleManager)
	if err != nil {
		return nil, err
	}
	return &FractionalScaleManager{o}, nil
}
