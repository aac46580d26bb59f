package wltest

import (
	"testing"
	"time"

	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

// Bound holds the proxies a bootstrapped client bound from the fake's
// registry. Globals the fake withheld stay nil.
type Bound struct {
	Compositor *wlclient.Compositor
	Shm        *wlclient.Shm
	Seat       *wlclient.Seat
	Shell      *wlclient.LayerShell
	Screencopy *wlclient.ScreencopyManager
	Viewporter *wlclient.Viewporter
	ScaleMgr   *wlclient.FractionalScaleManager
	XdgMgr     *wlclient.XdgOutputManager
	Outputs    []*wlclient.Output
}

// NextEvent pulls one event off the client, failing the test on a dead
// connection or a stall.
func NextEvent(t *testing.T, client *wlclient.Client) wlclient.Event {
	t.Helper()
	select {
	case ev, ok := <-client.Events():
		if !ok {
			t.Fatalf("event channel closed: %v", client.Err())
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

// Roundtrip flushes the connection with a sync, dropping every event
// before the callback. Use it to make the fake's records current before
// inspecting them.
func Roundtrip(t *testing.T, client *wlclient.Client) {
	t.Helper()
	cb, err := client.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	for {
		if done, ok := NextEvent(t, client).(wlclient.CallbackDoneEvent); ok && done.Callback == cb.ID() {
			return
		}
	}
}

// Bootstrap binds every advertised global at the versions the tool
// itself asks for and drains the initial bursts, leaving the connection
// idle. Component tests use it to skip registry plumbing.
func Bootstrap(t *testing.T, client *wlclient.Client) *Bound {
	t.Helper()
	reg, err := client.GetRegistry()
	if err != nil {
		t.Fatalf("get_registry: %v", err)
	}

	b := &Bound{}
	cb, err := client.Sync()
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	for {
		ev := NextEvent(t, client)
		if done, ok := ev.(wlclient.CallbackDoneEvent); ok && done.Callback == cb.ID() {
			break
		}
		g, ok := ev.(wlclient.GlobalEvent)
		if !ok {
			continue
		}
		switch g.Interface {
		case wlclient.InterfaceCompositor:
			b.Compositor, err = reg.BindCompositor(g.Name, min(g.Version, 4))
		case wlclient.InterfaceShm:
			b.Shm, err = reg.BindShm(g.Name, 1)
		case wlclient.InterfaceSeat:
			b.Seat, err = reg.BindSeat(g.Name, min(g.Version, 5))
		case wlclient.InterfaceLayerShell:
			b.Shell, err = reg.BindLayerShell(g.Name, min(g.Version, 4))
		case wlclient.InterfaceScreencopyManager:
			b.Screencopy, err = reg.BindScreencopyManager(g.Name, min(g.Version, 3))
		case wlclient.InterfaceViewporter:
			b.Viewporter, err = reg.BindViewporter(g.Name, 1)
		case wlclient.InterfaceFractionalScaleMgr:
			b.ScaleMgr, err = reg.BindFractionalScaleManager(g.Name, 1)
		case wlclient.InterfaceXdgOutputManager:
			b.XdgMgr, err = reg.BindXdgOutputManager(g.Name, min(g.Version, 3))
		case wlclient.InterfaceOutput:
			var out *wlclient.Output
			out, err = reg.BindOutput(g.Name, min(g.Version, 4))
			b.Outputs = append(b.Outputs, out)
		}
		if err != nil {
			t.Fatalf("bind %s: %v", g.Interface, err)
		}
	}

	// Second trip drains the bursts the binds triggered.
	Roundtrip(t, client)
	return b
}
