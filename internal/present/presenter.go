// Package present maps captured frames back onto their outputs as
// fullscreen overlay layer surfaces, keeping each surface's viewport in
// step with the output's scale factor.
package present

import (
	"fmt"

	"github.com/wayfreeze/wayfreeze/internal/buffer"
	"github.com/wayfreeze/wayfreeze/internal/output"
	"github.com/wayfreeze/wayfreeze/internal/scale"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"
)

// Namespace identifies the overlay surfaces to compositor policy.
const Namespace = "wayfreeze"

// SurfaceState tracks a presented surface through its life.
type SurfaceState int

const (
	// StateCreated means the role is assigned and the initial commit is
	// sent; the buffer goes up with the first configure.
	StateCreated SurfaceState = iota
	// StateCommitted means the frame is attached and committed.
	StateCommitted
	// StateDestroyed means torn down; late events are ignored.
	StateDestroyed
)

// Surface is one frozen output: a layer surface showing the captured
// buffer.
type Surface struct {
	Output *output.Output

	buf      *buffer.Buffer
	wl       *wlclient.Surface
	viewport *wlclient.Viewport
	fscale   *wlclient.FractionalScale
	layer    *wlclient.LayerSurface

	state        SurfaceState
	destW, destH int32
}

// State reports where the surface stands.
func (s *Surface) State() SurfaceState { return s.state }

// Destination is the logical size last applied to the surface.
func (s *Surface) Destination() (int32, int32) { return s.destW, s.destH }

// Presenter creates, reconfigures and tears down the overlay surfaces.
type Presenter struct {
	compositor *wlclient.Compositor
	viewporter *wlclient.Viewporter
	scaleMgr   *wlclient.FractionalScaleManager
	shell      *wlclient.LayerShell
	store      *buffer.Store

	surfaces []*Surface
	byLayer  map[uint32]*Surface
	byScale  map[uint32]*Surface
}

// NewPresenter wires the presenter to the globals it drives.
func NewPresenter(compositor *wlclient.Compositor, viewporter *wlclient.Viewporter, scaleMgr *wlclient.FractionalScaleManager, shell *wlclient.LayerShell, store *buffer.Store) *Presenter {
	return &Presenter{
		compositor: compositor,
		viewporter: viewporter,
		scaleMgr:   scaleMgr,
		shell:      shell,
		store:      store,
		byLayer:    make(map[uint32]*Surface),
		byScale:    make(map[uint32]*Surface),
	}
}

// Present puts a captured buffer on its output: an overlay layer
// surface anchored to every edge, sized to the output's logical
// dimensions, with the buffer stretched across it by the viewport. The
// buffer is attached once the compositor configures the surface.
func (p *Presenter) Present(out *output.Output, buf *buffer.Buffer) (*Surface, error) {
	wl, err := p.compositor.CreateSurface()
	if err != nil {
		return nil, err
	}
	viewport, err := p.viewporter.GetViewport(wl)
	if err != nil {
		return nil, err
	}
	fscale, err := p.scaleMgr.GetFractionalScale(wl)
	if err != nil {
		return nil, err
	}
	layer, err := p.shell.GetLayerSurface(wl, out.WL, wlclient.LayerOverlay, Namespace)
	if err != nil {
		return nil, err
	}

	s := &Surface{
		Output:   out,
		buf:      buf,
		wl:       wl,
		viewport: viewport,
		fscale:   fscale,
		layer:    layer,
	}
	s.destW, s.destH = out.Scale.DestinationSize(buf.Width, buf.Height, out.Transform)

	if err := layer.SetAnchor(wlclient.AnchorAll); err != nil {
		return nil, err
	}
	if err := layer.SetExclusiveZone(-1); err != nil {
		return nil, err
	}
	if err := layer.SetKeyboardInteractivity(wlclient.KeyboardInteractivityExclusive); err != nil {
		return nil, err
	}
	if err := layer.SetSize(uint32(s.destW), uint32(s.destH)); err != nil {
		return nil, err
	}
	full := wire.FixedInt(-1)
	if err := viewport.SetSource(full, full, full, full); err != nil {
		return nil, err
	}
	if err := viewport.SetDestination(s.destW, s.destH); err != nil {
		return nil, err
	}
	if err := wl.Commit(); err != nil {
		return nil, err
	}

	p.surfaces = append(p.surfaces, s)
	p.byLayer[layer.ID()] = s
	p.byScale[fscale.ID()] = s
	return s, nil
}

// HandleConfigure acks every configure and performs the one-time attach
// and commit on the first. Stale configures for torn-down surfaces are
// dropped.
func (p *Presenter) HandleConfigure(ev wlclient.LayerConfigureEvent) error {
	s, ok := p.byLayer[ev.LayerSurface]
	if !ok || s.state == StateDestroyed {
		return nil
	}
	if err := s.layer.AckConfigure(ev.Serial); err != nil {
		return err
	}
	if s.state != StateCreated {
		return nil
	}
	if err := s.wl.SetBufferScale(1); err != nil {
		return err
	}
	if err := s.wl.SetBufferTransform(s.Output.Transform); err != nil {
		return err
	}
	if err := s.wl.Attach(s.buf.WL(), 0, 0); err != nil {
		return err
	}
	if err := s.wl.Damage(0, 0, s.destW, s.destH); err != nil {
		return err
	}
	if err := s.wl.Commit(); err != nil {
		return err
	}
	s.state = StateCommitted
	return nil
}

// HandlePreferredScale updates the output's scale factor and, when the
// destination actually changes, re-applies the surface size and
// viewport and commits. Repeats of the current scale are no-ops, which
// also stops the echo a recommit can trigger.
func (p *Presenter) HandlePreferredScale(ev wlclient.PreferredScaleEvent) error {
	s, ok := p.byScale[ev.FractionalScale]
	if !ok || s.state == StateDestroyed {
		return nil
	}
	factor := scale.Factor(ev.Scale)
	if factor == s.Output.Scale {
		return nil
	}
	s.Output.Scale = factor

	w, h := factor.DestinationSize(s.buf.Width, s.buf.Height, s.Output.Transform)
	if w == s.destW && h == s.destH {
		return nil
	}
	s.destW, s.destH = w, h

	if err := s.layer.SetSize(uint32(w), uint32(h)); err != nil {
		return err
	}
	if err := s.viewport.SetDestination(w, h); err != nil {
		return err
	}
	if s.state == StateCommitted {
		return s.wl.Commit()
	}
	return nil
}

// SurfaceForLayer resolves a layer surface id, for closed events.
func (p *Presenter) SurfaceForLayer(id uint32) (*Surface, bool) {
	s, ok := p.byLayer[id]
	return s, ok
}

// Surfaces returns every surface ever presented, including torn-down
// ones.
func (p *Presenter) Surfaces() []*Surface {
	return p.surfaces
}

// CommittedCount is the number of surfaces currently showing a frame.
func (p *Presenter) CommittedCount() int {
	n := 0
	for _, s := range p.surfaces {
		if s.state == StateCommitted {
			n++
		}
	}
	return n
}

// Teardown destroys one surface and returns its buffer to the store.
// Calling it again is a no-op.
func (p *Presenter) Teardown(s *Surface) error {
	if s.state == StateDestroyed {
		return nil
	}
	s.state = StateDestroyed

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(s.fscale.Destroy())
	keep(s.viewport.Destroy())
	keep(s.layer.Destroy())
	keep(s.wl.Destroy())
	keep(p.store.Release(s.buf))
	s.buf = nil

	if first != nil {
		return fmt.Errorf("teardown of %s: %w", s.Output.Label(), first)
	}
	return nil
}

// TeardownAll destroys every remaining surface, keeping going past
// failures, and reports the first one.
func (p *Presenter) TeardownAll() error {
	var first error
	for _, s := range p.surfaces {
		if err := p.Teardown(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
