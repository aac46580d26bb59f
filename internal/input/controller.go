// Package input watches the seat for the unfreeze triggers: any
// pointer button release, or Escape going down.
package input

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

// escKeyCode is KEY_ESC in raw evdev terms, which is what
// wl_keyboard.key carries. No keymap lookup needed for a single
// hardcoded key.
const escKeyCode = 1

// Reason says which trigger ended the freeze.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonPointer
	ReasonEscape
	ReasonClosed
)

func (r Reason) String() string {
	switch r {
	case ReasonPointer:
		return "pointer button"
	case ReasonEscape:
		return "escape key"
	case ReasonClosed:
		return "surface closed"
	}
	return "none"
}

// Controller binds the seat's input devices and turns their events into
// a one-shot exit decision. Triggers only count once Arm has been
// called; everything after the first trigger is ignored.
type Controller struct {
	seat     *wlclient.Seat
	pointer  *wlclient.Pointer
	keyboard *wlclient.Keyboard

	armed  bool
	fired  bool
	reason Reason
}

// NewController watches the given seat.
func NewController(seat *wlclient.Seat) *Controller {
	return &Controller{seat: seat}
}

// HandleCapabilities requests the pointer and keyboard devices as the
// seat advertises them.
func (c *Controller) HandleCapabilities(ev wlclient.SeatCapabilitiesEvent) error {
	if ev.Seat != c.seat.ID() {
		return nil
	}
	if ev.Capabilities&wlclient.SeatCapabilityPointer != 0 && c.pointer == nil {
		p, err := c.seat.GetPointer()
		if err != nil {
			return fmt.Errorf("failed to get pointer: %w", err)
		}
		c.pointer = p
	}
	if ev.Capabilities&wlclient.SeatCapabilityKeyboard != 0 && c.keyboard == nil {
		k, err := c.seat.GetKeyboard()
		if err != nil {
			return fmt.Errorf("failed to get keyboard: %w", err)
		}
		c.keyboard = k
	}
	return nil
}

// HandleKeymap closes the keymap fd. The key comparison is on raw evdev
// codes, so the map itself is never read.
func (c *Controller) HandleKeymap(ev wlclient.KeyboardKeymapEvent) {
	if ev.Fd >= 0 {
		unix.Close(ev.Fd)
	}
}

// Arm starts accepting triggers. Input received before this is
// discarded, so a click during capture cannot end a freeze that has not
// started showing yet.
func (c *Controller) Arm() {
	c.armed = true
}

// HandleButton reports whether this button event fired the exit: any
// button, on release.
func (c *Controller) HandleButton(ev wlclient.PointerButtonEvent) bool {
	if !c.armed || c.fired || ev.State != wlclient.ButtonStateReleased {
		return false
	}
	c.fired = true
	c.reason = ReasonPointer
	return true
}

// HandleKey reports whether this key event fired the exit: Escape, on
// press.
func (c *Controller) HandleKey(ev wlclient.KeyboardKeyEvent) bool {
	if !c.armed || c.fired || ev.State != wlclient.KeyStatePressed || ev.Key != escKeyCode {
		return false
	}
	c.fired = true
	c.reason = ReasonEscape
	return true
}

// Fire trips the controller from outside the event stream, for
// compositor-driven teardown like a closed layer surface. Unlike the
// input handlers it does not wait for Arm, so a close that lands just
// before the exit wait starts is not lost. It reports whether this call
// was the first trigger.
func (c *Controller) Fire(reason Reason) bool {
	if c.fired {
		return false
	}
	c.fired = true
	c.reason = reason
	return true
}

// Fired reports whether the exit has been triggered.
func (c *Controller) Fired() bool { return c.fired }

// TriggerReason reports what fired the exit.
func (c *Controller) TriggerReason() Reason { return c.reason }
