package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

// wl_seat capability bits.
const (
	SeatCapabilityPointer  uint32 = 1
	SeatCapabilityKeyboard uint32 = 2
	SeatCapabilityTouch    uint32 = 4
)

// Button and key states.
const (
	ButtonStateReleased uint32 = 0
	ButtonStatePressed  uint32 = 1
	KeyStateReleased    uint32 = 0
	KeyStatePressed     uint32 = 1
)

const (
	seatGetPointer  = 0
	seatGetKeyboard = 1

	seatEvtCapabilities = 0
	seatEvtName         = 1

	pointerEvtButton = 3

	keyboardEvtKeymap = 0
	keyboardEvtKey    = 3
)

// Seat is the wl_seat global.
type Seat struct {
	object
}

// SeatCapabilitiesEvent reports which input devices the seat has.
type SeatCapabilitiesEvent struct {
	Seat         uint32
	Capabilities uint32
}

func (SeatCapabilitiesEvent) String() string { return "wl_seat.capabilities" }

// SeatNameEvent names the seat.
type SeatNameEvent struct {
	Seat uint32
	Name string
}

func (SeatNameEvent) String() string { return "wl_seat.name" }

func decodeSeat(m *wire.Message) Event {
	switch m.Opcode {
	case seatEvtCapabilities:
		return SeatCapabilitiesEvent{Seat: m.Object, Capabilities: m.Uint()}
	case seatEvtName:
		return SeatNameEvent{Seat: m.Object, Name: m.Str()}
	}
	return nil
}

// GetPointer creates the pointer device for the seat.
func (s *Seat) GetPointer() (*Pointer, error) {
	p := &Pointer{object{s.c, s.c.newID(kindPointer)}}
	if err := s.c.request("wl_seat.get_pointer", wire.NewMessage(s.id, seatGetPointer).PutUint(p.id)); err != nil {
		return nil, err
	}
	return p, nil
}

// GetKeyboard creates the keyboard device for the seat.
func (s *Seat) GetKeyboard() (*Keyboard, error) {
	k := &Keyboard{object{s.c, s.c.newID(kindKeyboard)}}
	if err := s.c.request("wl_seat.get_keyboard", wire.NewMessage(s.id, seatGetKeyboard).PutUint(k.id)); err != nil {
		return nil, err
	}
	return k, nil
}

// Pointer is a wl_pointer. Only button events are decoded; motion and
// focus events are dropped by the reader.
type Pointer struct {
	object
}

// PointerButtonEvent is a button press or release. Button is a linux
// input event code (BTN_LEFT and friends).
type PointerButtonEvent struct {
	Pointer uint32
	Serial  uint32
	Time    uint32
	Button  uint32
	State   uint32
}

func (PointerButtonEvent) String() string { return "wl_pointer.button" }

func decodePointer(m *wire.Message) Event {
	if m.Opcode == pointerEvtButton {
		return PointerButtonEvent{
			Pointer: m.Object,
			Serial:  m.Uint(),
			Time:    m.Uint(),
			Button:  m.Uint(),
			State:   m.Uint(),
		}
	}
	return nil
}

// Keyboard is a wl_keyboard. Key and keymap events are decoded; focus
// and modifier events are dropped.
type Keyboard struct {
	object
}

// KeyboardKeymapEvent carries the keymap fd. The decoder takes the fd
// off the connection queue so the queue stays aligned; the consumer
// owns the fd and must close it.
type KeyboardKeymapEvent struct {
	Keyboard uint32
	Format   uint32
	Fd       int
	Size     uint32
}

func (KeyboardKeymapEvent) String() string { return "wl_keyboard.keymap" }

// KeyboardKeyEvent is a key press or release. Key is a raw evdev code,
// without the xkb offset.
type KeyboardKeyEvent struct {
	Keyboard uint32
	Serial   uint32
	Time     uint32
	Key      uint32
	State    uint32
}

func (KeyboardKeyEvent) String() string { return "wl_keyboard.key" }

func (c *Client) decodeKeyboard(m *wire.Message) Event {
	switch m.Opcode {
	case keyboardEvtKeymap:
		ev := KeyboardKeymapEvent{Keyboard: m.Object, Format: m.Uint(), Fd: -1}
		if fd, ok := c.conn.TakeFd(); ok {
			ev.Fd = fd
		}
		ev.Size = m.Uint()
		return ev
	case keyboardEvtKey:
		return KeyboardKeyEvent{
			Keyboard: m.Object,
			Serial:   m.Uint(),
			Time:     m.Uint(),
			Key:      m.Uint(),
			State:    m.Uint(),
		}
	}
	return nil
}
