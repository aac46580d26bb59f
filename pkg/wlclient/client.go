// Package wlclient speaks the client side of the Wayland protocol for
// the interfaces this tool needs: the core protocol plus wlr-layer-shell,
// wlr-screencopy, xdg-output, viewporter and fractional-scale.
//
// Requests are methods on typed proxies. Events are decoded by a reader
// goroutine and delivered in order on a single channel; the consumer
// type-switches on the concrete event structs, each of which carries the
// id of the object it belongs to.
package wlclient

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"
)

// Event is a decoded compositor event. String names the protocol event,
// wl_pointer.button style.
type Event interface {
	String() string
}

type objKind int

const (
	kindDisplay objKind = iota
	kindRegistry
	kindCallback
	kindCompositor
	kindSurface
	kindShm
	kindShmPool
	kindBuffer
	kindSeat
	kindPointer
	kindKeyboard
	kindOutput
	kindXdgOutputManager
	kindXdgOutput
	kindViewporter
	kindViewport
	kindFractionalScaleManager
	kindFractionalScale
	kindLayerShell
	kindLayerSurface
	kindScreencopyManager
	kindScreencopyFrame
)

const displayID = 1

// wl_display requests and events.
const (
	displaySync        = 0
	displayGetRegistry = 1

	displayEvtError    = 0
	displayEvtDeleteID = 1
)

// Client owns the connection and the object table. All requests may be
// issued from any goroutine; events are read by an internal goroutine
// and delivered on Events.
type Client struct {
	conn *wire.Conn

	mu      sync.Mutex
	nextID  uint32
	free    []uint32
	objects map[uint32]objKind
	err     error
	closed  bool

	events chan Event
}

// Connect dials the compositor named by the environment and starts the
// event reader.
func Connect() (*Client, error) {
	conn, err := wire.Dial()
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established wire connection. Tests use this to
// plug in one end of a socketpair.
func NewClient(conn *wire.Conn) *Client {
	c := &Client{
		conn:    conn,
		nextID:  2,
		objects: map[uint32]objKind{displayID: kindDisplay},
		events:  make(chan Event, 64),
	}
	go c.readLoop()
	return c
}

// Events delivers decoded events in arrival order. The channel is
// closed when the connection dies; Err then reports why.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Err reports the reason the event channel closed. It is nil after a
// deliberate Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears down the connection. Outstanding protocol objects are
// reclaimed by the compositor when the socket closes.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// Sync sends wl_display.sync. The compositor answers with a
// CallbackDoneEvent for the returned callback once every prior request
// has been processed.
func (c *Client) Sync() (*Callback, error) {
	cb := &Callback{object{c, c.newID(kindCallback)}}
	if err := c.request("wl_display.sync", wire.NewMessage(displayID, displaySync).PutUint(cb.id)); err != nil {
		return nil, err
	}
	return cb, nil
}

// GetRegistry creates the registry; the compositor follows with one
// GlobalEvent per advertised global.
func (c *Client) GetRegistry() (*Registry, error) {
	r := &Registry{object{c, c.newID(kindRegistry)}}
	if err := c.request("wl_display.get_registry", wire.NewMessage(displayID, displayGetRegistry).PutUint(r.id)); err != nil {
		return nil, err
	}
	return r, nil
}

// object is the common part of every proxy.
type object struct {
	c  *Client
	id uint32
}

// ID is the protocol id of the proxy; events carry it.
func (o object) ID() uint32 { return o.id }

// Callback is a wl_callback created by Sync.
type Callback struct {
	object
}

func (c *Client) request(name string, m *wire.Message) error {
	if err := c.conn.WriteMessage(m); err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

func (c *Client) newID(k objKind) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var id uint32
	if n := len(c.free); n > 0 {
		id = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		id = c.nextID
		c.nextID++
	}
	c.objects[id] = k
	return id
}

func (c *Client) kindOf(id uint32) (objKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.objects[id]
	return k, ok
}

func (c *Client) forget(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[id]; !ok {
		return
	}
	delete(c.objects, id)
	if id >= 2 && id < 0xff000000 {
		c.free = append(c.free, id)
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		m, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		ev, err := c.decode(m)
		if err != nil {
			c.fail(err)
			return
		}
		if ev != nil {
			c.events <- ev
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
}

// decode turns one message into an event. Events for unknown objects or
// unhandled opcodes are dropped; the stream stays aligned because every
// message is length-prefixed and no dropped event carries an fd.
func (c *Client) decode(m *wire.Message) (Event, error) {
	kind, ok := c.kindOf(m.Object)
	if !ok {
		return nil, nil
	}

	var ev Event
	switch kind {
	case kindDisplay:
		return c.decodeDisplay(m)
	case kindRegistry:
		ev = decodeRegistry(m)
	case kindCallback:
		if m.Opcode == 0 {
			ev = CallbackDoneEvent{Callback: m.Object, Data: m.Uint()}
		}
	case kindShm:
		ev = decodeShm(m)
	case kindBuffer:
		ev = decodeBuffer(m)
	case kindSeat:
		ev = decodeSeat(m)
	case kindPointer:
		ev = decodePointer(m)
	case kindKeyboard:
		ev = c.decodeKeyboard(m)
	case kindOutput:
		ev = decodeOutput(m)
	case kindXdgOutput:
		ev = decodeXdgOutput(m)
	case kindFractionalScale:
		ev = decodeFractionalScale(m)
	case kindLayerSurface:
		ev = decodeLayerSurface(m)
	case kindScreencopyFrame:
		ev = decodeScreencopyFrame(m)
	}
	if err := m.Err(); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Client) decodeDisplay(m *wire.Message) (Event, error) {
	switch m.Opcode {
	case displayEvtError:
		ev := DisplayErrorEvent{ObjectID: m.Uint(), Code: m.Uint(), Message: m.Str()}
		if err := m.Err(); err != nil {
			return nil, err
		}
		return ev, nil
	case displayEvtDeleteID:
		id := m.Uint()
		if err := m.Err(); err != nil {
			return nil, err
		}
		c.forget(id)
		return nil, nil
	}
	return nil, nil
}

// DisplayErrorEvent is a wl_display.error: the compositor found a
// protocol violation and the connection is unusable.
type DisplayErrorEvent struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (DisplayErrorEvent) String() string { return "wl_display.error" }

// CallbackDoneEvent answers a Sync.
type CallbackDoneEvent struct {
	Callback uint32
	Data     uint32
}

func (CallbackDoneEvent) String() string { return "wl_callback.done" }
