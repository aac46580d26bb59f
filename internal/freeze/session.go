// Package freeze drives a full freeze session: discover outputs, run
// the optional pre-freeze command, capture every output, present the
// captured frames as overlay surfaces, wait for the dismiss trigger and
// tear everything back down.
package freeze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wayfreeze/wayfreeze/internal/buffer"
	"github.com/wayfreeze/wayfreeze/internal/capture"
	"github.com/wayfreeze/wayfreeze/internal/command"
	"github.com/wayfreeze/wayfreeze/internal/config"
	"github.com/wayfreeze/wayfreeze/internal/input"
	"github.com/wayfreeze/wayfreeze/internal/output"
	"github.com/wayfreeze/wayfreeze/internal/present"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

// Versions this client implements. Binds use the lower of these and
// what the compositor advertises.
const (
	compositorVersion = 4
	shmVersion        = 1
	seatVersion       = 5
	outputVersion     = 4
	layerShellVersion = 4
	screencopyVersion = 3
	viewporterVersion = 1
	fractionalVersion = 1
	xdgOutputVersion  = 3
)

// Phase identifies where in its lifecycle a session currently is.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRunningBeforeCmd
	PhaseAwaitingBeforeDelay
	PhaseCapturing
	PhasePresenting
	PhaseAwaitingExit
	PhaseRunningAfterCmd
	PhaseAwaitingAfterDelay
	PhaseTerminated
)

// String returns a lowercase name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRunningBeforeCmd:
		return "running-before-cmd"
	case PhaseAwaitingBeforeDelay:
		return "awaiting-before-delay"
	case PhaseCapturing:
		return "capturing"
	case PhasePresenting:
		return "presenting"
	case PhaseAwaitingExit:
		return "awaiting-exit"
	case PhaseRunningAfterCmd:
		return "running-after-cmd"
	case PhaseAwaitingAfterDelay:
		return "awaiting-after-delay"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session owns one freeze from connect to teardown.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger
	client *wlclient.Client
	runner *command.Runner

	registry *wlclient.Registry
	outputs  *output.Registry

	compositor *wlclient.Compositor
	shm        *wlclient.Shm
	seat       *wlclient.Seat
	shell      *wlclient.LayerShell
	screencopy *wlclient.ScreencopyManager
	viewporter *wlclient.Viewporter
	scaleMgr   *wlclient.FractionalScaleManager
	xdgMgr     *wlclient.XdgOutputManager

	store     *buffer.Store
	presenter *present.Presenter
	exit      *input.Controller

	// Outputs present at the end of discovery. Globals that appear
	// later are ignored, so these are the capture targets.
	targets  []*output.Output
	captures []*capture.Session
	byFrame  map[uint32]*capture.Session

	phase       Phase
	pendingSync uint32
	syncDone    bool
}

// New prepares a session over an established Wayland connection. The
// connection stays owned by the caller and is not closed by Run.
func New(cfg *config.Config, logger *slog.Logger, client *wlclient.Client) *Session {
	return &Session{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		runner:  command.NewRunner(logger),
		outputs: output.NewRegistry(),
		byFrame: make(map[uint32]*capture.Session),
		phase:   PhaseInit,
	}
}

// Phase reports the session's current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// ExitReason reports what dismissed the freeze. Meaningful once Run
// has returned nil.
func (s *Session) ExitReason() input.Reason {
	if s.exit == nil {
		return input.ReasonNone
	}
	return s.exit.TriggerReason()
}

// Run executes the whole freeze and blocks until it is dismissed, the
// context is cancelled or an error aborts it. Any error leaves the
// screen unfrozen: all surfaces and buffers are released before Run
// returns.
func (s *Session) Run(ctx context.Context) error {
	err := s.run(ctx)
	if err != nil {
		s.cleanup()
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	s.setPhase(PhaseInit)

	reg, err := s.client.GetRegistry()
	if err != nil {
		return err
	}
	s.registry = reg

	// First round trip collects the globals and binds them.
	if err := s.roundtrip(ctx); err != nil {
		return err
	}
	if err := s.checkCapabilities(); err != nil {
		return err
	}
	s.store = buffer.NewStore(s.shm)
	s.presenter = present.NewPresenter(s.compositor, s.viewporter, s.scaleMgr, s.shell, s.store)

	if s.xdgMgr != nil {
		for _, out := range s.outputs.Enumerate() {
			xdg, err := s.xdgMgr.GetXdgOutput(out.WL)
			if err != nil {
				return err
			}
			s.outputs.AttachXdg(out, xdg)
		}
	} else {
		s.logger.Debug("xdg-output not available, using wl_output geometry only")
	}

	// Second round trip flushes the initial output bursts and the seat
	// capabilities.
	if err := s.roundtrip(ctx); err != nil {
		return err
	}
	if s.outputs.Len() == 0 {
		return output.ErrNoOutputs
	}
	s.targets = s.outputs.Enumerate()
	for _, out := range s.targets {
		s.logger.Info("discovered output",
			"name", out.Label(),
			"size", fmt.Sprintf("%dx%d", out.PixelWidth, out.PixelHeight),
			"scale", out.Scale.String(),
			"transform", out.Transform)
	}

	if s.cfg.Command.BeforeCmd != "" {
		s.setPhase(PhaseRunningBeforeCmd)
		if err := s.runner.Spawn(s.cfg.Command.BeforeCmd); err != nil {
			s.logger.Warn("before-freeze command failed to start", "error", err)
		}
		if s.cfg.Command.BeforeTimeout > 0 {
			s.setPhase(PhaseAwaitingBeforeDelay)
			if err := s.waitDelay(ctx, s.cfg.Command.BeforeTimeout); err != nil {
				return err
			}
		}
	}

	s.setPhase(PhaseCapturing)
	for _, out := range s.targets {
		sess, err := capture.Begin(s.screencopy, s.store, out, s.cfg.Freeze.HideCursor)
		if err != nil {
			return err
		}
		s.captures = append(s.captures, sess)
		s.byFrame[sess.FrameID()] = sess
	}
	if err := s.waitFor(ctx, s.allCaptured); err != nil {
		return err
	}

	s.setPhase(PhasePresenting)
	for _, sess := range s.captures {
		buf := sess.TakeBuffer()
		if buf == nil {
			return fmt.Errorf("no captured frame for %s", sess.Output.Label())
		}
		if _, err := s.presenter.Present(sess.Output, buf); err != nil {
			return err
		}
	}
	if err := s.waitFor(ctx, s.allCommitted); err != nil {
		return err
	}
	s.logger.Info("screen frozen", "outputs", len(s.targets))

	s.setPhase(PhaseAwaitingExit)
	s.exit.Arm()
	if err := s.waitFor(ctx, s.exit.Fired); err != nil {
		return err
	}
	s.logger.Info("unfreezing", "trigger", s.exit.TriggerReason().String())

	// Surfaces come down before the after command runs, so the command
	// observes the live screen.
	var teardownErr error
	if err := s.presenter.TeardownAll(); err != nil {
		s.logger.Warn("teardown failed", "error", err)
		teardownErr = err
	}

	if s.cfg.Command.AfterCmd != "" {
		s.setPhase(PhaseRunningAfterCmd)
		if err := s.runner.Spawn(s.cfg.Command.AfterCmd); err != nil {
			s.logger.Warn("after-freeze command failed to start", "error", err)
		}
		if s.cfg.Command.AfterTimeout > 0 {
			s.setPhase(PhaseAwaitingAfterDelay)
			if err := s.waitDelay(ctx, s.cfg.Command.AfterTimeout); err != nil {
				return err
			}
		}
	}

	s.setPhase(PhaseTerminated)
	return teardownErr
}

func (s *Session) setPhase(p Phase) {
	s.phase = p
	s.logger.Debug("phase", "phase", p.String())
}

// roundtrip issues a wl_display.sync and processes events until its
// callback fires, guaranteeing the compositor has handled everything
// sent before it.
func (s *Session) roundtrip(ctx context.Context) error {
	cb, err := s.client.Sync()
	if err != nil {
		return err
	}
	s.pendingSync = cb.ID()
	s.syncDone = false
	return s.waitFor(ctx, func() bool { return s.syncDone })
}

// waitFor processes events until cond holds.
func (s *Session) waitFor(ctx context.Context, cond func() bool) error {
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.client.Events():
			if !ok {
				return s.disconnectErr()
			}
			if err := s.handle(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// waitDelay sleeps for d while continuing to service protocol events.
// A lost connection does not cut the delay short.
func (s *Session) waitDelay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				s.logger.Debug("connection closed during delay")
				events = nil
				continue
			}
			if err := s.handle(ev); err != nil {
				s.logger.Warn("error during delay", "error", err)
			}
		}
	}
}

func (s *Session) allCaptured() bool {
	for _, sess := range s.captures {
		if sess.State() != capture.StateReady {
			return false
		}
	}
	return true
}

func (s *Session) allCommitted() bool {
	return s.presenter.CommittedCount() == len(s.targets)
}

func (s *Session) disconnectErr() error {
	if err := s.client.Err(); err != nil {
		return fmt.Errorf("connection lost: %w", err)
	}
	return errors.New("connection closed")
}

// cleanup releases everything a partially completed run may still
// hold. Safe to call at any phase.
func (s *Session) cleanup() {
	for _, sess := range s.captures {
		sess.Abort()
	}
	if s.presenter != nil {
		if err := s.presenter.TeardownAll(); err != nil {
			s.logger.Debug("cleanup teardown", "error", err)
		}
	}
}

// handle dispatches one event to whichever component owns it. A non-nil
// return aborts the session.
func (s *Session) handle(ev wlclient.Event) error {
	s.logger.Debug("event", "type", ev.String())
	switch e := ev.(type) {
	case wlclient.DisplayErrorEvent:
		return fmt.Errorf("protocol error on object %d: %s (code %d)", e.ObjectID, e.Message, e.Code)
	case wlclient.CallbackDoneEvent:
		if e.Callback == s.pendingSync {
			s.syncDone = true
		}
	case wlclient.GlobalEvent:
		return s.bindGlobal(e)
	case wlclient.GlobalRemoveEvent:
		s.logger.Warn("global removed mid-session, ignoring", "name", e.Name)
	case wlclient.OutputGeometryEvent:
		s.outputs.HandleGeometry(e)
	case wlclient.OutputModeEvent:
		s.outputs.HandleMode(e)
	case wlclient.OutputScaleEvent:
		s.outputs.HandleScale(e)
	case wlclient.OutputNameEvent:
		s.outputs.HandleName(e)
	case wlclient.OutputDoneEvent:
		s.outputs.HandleDone(e)
	case wlclient.XdgOutputLogicalPositionEvent:
		s.outputs.HandleLogicalPosition(e)
	case wlclient.XdgOutputLogicalSizeEvent:
		s.outputs.HandleLogicalSize(e)
	case wlclient.SeatCapabilitiesEvent:
		if s.exit != nil {
			if err := s.exit.HandleCapabilities(e); err != nil {
				return err
			}
		}
	case wlclient.KeyboardKeymapEvent:
		if s.exit != nil {
			s.exit.HandleKeymap(e)
		}
	case wlclient.PointerButtonEvent:
		if s.exit != nil {
			s.exit.HandleButton(e)
		}
	case wlclient.KeyboardKeyEvent:
		if s.exit != nil {
			s.exit.HandleKey(e)
		}
	case wlclient.FrameBufferEvent:
		if sess, ok := s.byFrame[e.Frame]; ok {
			return sess.HandleBufferParams(e)
		}
	case wlclient.FrameBufferDoneEvent:
		if sess, ok := s.byFrame[e.Frame]; ok {
			return sess.HandleBufferDone()
		}
	case wlclient.FrameReadyEvent:
		if sess, ok := s.byFrame[e.Frame]; ok {
			if err := sess.HandleReady(); err != nil {
				return err
			}
			s.logger.Debug("frame captured", "output", sess.Output.Label())
		}
	case wlclient.FrameFailedEvent:
		if sess, ok := s.byFrame[e.Frame]; ok {
			if err := sess.HandleFailed(); err != nil {
				s.logger.Debug("failed frame teardown", "error", err)
			}
			return &CaptureFailedError{Output: sess.Output.Label()}
		}
	case wlclient.LayerConfigureEvent:
		return s.presenter.HandleConfigure(e)
	case wlclient.PreferredScaleEvent:
		return s.presenter.HandlePreferredScale(e)
	case wlclient.LayerClosedEvent:
		return s.handleClosed(e)
	}
	return nil
}

// handleClosed treats a compositor-initiated close as a dismiss once
// the surface is showing its frame, and as a fatal error while it is
// still going up.
func (s *Session) handleClosed(e wlclient.LayerClosedEvent) error {
	srf, ok := s.presenter.SurfaceForLayer(e.LayerSurface)
	if !ok || srf.State() == present.StateDestroyed {
		return nil
	}
	if srf.State() == present.StateCommitted {
		if s.exit.Fire(input.ReasonClosed) {
			s.logger.Info("surface closed by compositor", "output", srf.Output.Label())
		}
		return nil
	}
	return fmt.Errorf("compositor closed the surface for %s", srf.Output.Label())
}

func (s *Session) bindGlobal(e wlclient.GlobalEvent) error {
	var err error
	switch e.Interface {
	case wlclient.InterfaceCompositor:
		if s.compositor == nil {
			s.compositor, err = s.registry.BindCompositor(e.Name, min(e.Version, compositorVersion))
		}
	case wlclient.InterfaceShm:
		if s.shm == nil {
			s.shm, err = s.registry.BindShm(e.Name, min(e.Version, shmVersion))
		}
	case wlclient.InterfaceSeat:
		if s.seat == nil {
			s.seat, err = s.registry.BindSeat(e.Name, min(e.Version, seatVersion))
			if err == nil {
				s.exit = input.NewController(s.seat)
			}
		}
	case wlclient.InterfaceOutput:
		if s.phase != PhaseInit {
			s.logger.Warn("output appeared mid-session, ignoring", "name", e.Name)
			return nil
		}
		var wl *wlclient.Output
		wl, err = s.registry.BindOutput(e.Name, min(e.Version, outputVersion))
		if err == nil {
			s.outputs.Add(wl)
		}
	case wlclient.InterfaceLayerShell:
		if s.shell == nil {
			s.shell, err = s.registry.BindLayerShell(e.Name, min(e.Version, layerShellVersion))
		}
	case wlclient.InterfaceScreencopyManager:
		if s.screencopy == nil {
			s.screencopy, err = s.registry.BindScreencopyManager(e.Name, min(e.Version, screencopyVersion))
		}
	case wlclient.InterfaceViewporter:
		if s.viewporter == nil {
			s.viewporter, err = s.registry.BindViewporter(e.Name, min(e.Version, viewporterVersion))
		}
	case wlclient.InterfaceFractionalScaleMgr:
		if s.scaleMgr == nil {
			s.scaleMgr, err = s.registry.BindFractionalScaleManager(e.Name, min(e.Version, fractionalVersion))
		}
	case wlclient.InterfaceXdgOutputManager:
		if s.xdgMgr == nil {
			s.xdgMgr, err = s.registry.BindXdgOutputManager(e.Name, min(e.Version, xdgOutputVersion))
		}
	}
	return err
}

func (s *Session) checkCapabilities() error {
	required := []struct {
		iface string
		bound bool
	}{
		{wlclient.InterfaceCompositor, s.compositor != nil},
		{wlclient.InterfaceShm, s.shm != nil},
		{wlclient.InterfaceSeat, s.seat != nil},
		{wlclient.InterfaceLayerShell, s.shell != nil},
		{wlclient.InterfaceScreencopyManager, s.screencopy != nil},
		{wlclient.InterfaceViewporter, s.viewporter != nil},
		{wlclient.InterfaceFractionalScaleMgr, s.scaleMgr != nil},
	}
	for _, r := range required {
		if !r.bound {
			return &MissingCapabilityError{Interface: r.iface}
		}
	}
	return nil
}
