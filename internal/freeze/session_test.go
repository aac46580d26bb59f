package freeze_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wayfreeze/wayfreeze/internal/config"
	"github.com/wayfreeze/wayfreeze/internal/freeze"
	"github.com/wayfreeze/wayfreeze/internal/input"
	"github.com/wayfreeze/wayfreeze/internal/logging"
	"github.com/wayfreeze/wayfreeze/internal/output"
	"github.com/wayfreeze/wayfreeze/internal/wltest"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	logger, err := logging.New(logging.Options{Level: "debug", Output: io.Discard})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return logger
}

// startSession runs a freeze against a fake compositor on its own
// goroutine and hands back the channel Run's result lands on.
func startSession(t *testing.T, ctx context.Context, opts wltest.Options, cfg *config.Config) (*wltest.Compositor, *freeze.Session, <-chan error) {
	t.Helper()
	comp, client := wltest.Start(t, opts)
	sess := freeze.New(cfg, testLogger(t), client)
	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(ctx) }()
	return comp, sess, errCh
}

// waitErr collects Run's result.
func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not return")
	}
	return nil
}

// awaitExit repeats the trigger until Run returns. Retrying absorbs the
// gap between the trigger landing and the session arming its exit.
func awaitExit(t *testing.T, errCh <-chan error, trigger func()) error {
	t.Helper()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	trigger()
	for {
		select {
		case err := <-errCh:
			return err
		case <-tick.C:
			trigger()
		case <-deadline:
			t.Fatal("session did not exit after trigger")
		}
	}
}

// waitPresented blocks until n surfaces show an attached frame on the
// fake compositor.
func waitPresented(t *testing.T, comp *wltest.Compositor, n int) {
	t.Helper()
	comp.Eventually(func() bool {
		surfs := comp.Surfaces()
		if len(surfs) != n {
			return false
		}
		for _, s := range surfs {
			if s.Commits < 2 {
				return false
			}
		}
		return true
	}, "surfaces to show their frames")
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("command never created %s", path)
}

func TestFreezeTwoOutputsClickDismiss(t *testing.T) {
	comp, sess, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{
			{Name: "DP-1", Width: 2560, Height: 1440, Scale: 1},
			{Name: "HDMI-A-1", Width: 1920, Height: 1080, Scale: 1},
		},
	}, config.Default())
	waitPresented(t, comp, 2)

	// The compositor switches the second output to 1.25x while frozen;
	// its surface must follow.
	comp.SendPreferredScale(1, 150)
	comp.Eventually(func() bool {
		return comp.LayerSurfaces()[1].Width == 1536
	}, "second surface to adopt the new scale")

	if err := awaitExit(t, errCh, func() { comp.Click(wltest.BtnLeft) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.ExitReason(); got != input.ReasonPointer {
		t.Errorf("exit reason = %v, want pointer button", got)
	}
	if got := sess.Phase(); got != freeze.PhaseTerminated {
		t.Errorf("phase = %v, want terminated", got)
	}

	frames := comp.Frames()
	if len(frames) != 2 {
		t.Fatalf("compositor saw %d captures, want 2", len(frames))
	}
	for i, want := range []string{"DP-1", "HDMI-A-1"} {
		f := frames[i]
		if f.Output != want {
			t.Errorf("capture %d output = %q, want %q", i, f.Output, want)
		}
		if !f.OverlayCursor {
			t.Errorf("capture %d left the cursor out without hide-cursor", i)
		}
		if !f.Copied || !f.Completed || f.Failed {
			t.Errorf("capture %d = %+v, want copied and completed", i, f)
		}
		if !f.Destroyed {
			t.Errorf("capture %d frame object leaked", i)
		}
	}

	layers := comp.LayerSurfaces()
	if len(layers) != 2 {
		t.Fatalf("compositor saw %d layer surfaces, want 2", len(layers))
	}
	for i, l := range layers {
		if l.Namespace != "wayfreeze" {
			t.Errorf("surface %d namespace = %q", i, l.Namespace)
		}
		if l.Layer != wlclient.LayerOverlay {
			t.Errorf("surface %d layer = %d, want overlay", i, l.Layer)
		}
		if l.Anchor != wlclient.AnchorAll || l.ExclusiveZone != -1 {
			t.Errorf("surface %d not fullscreen: anchor %#x zone %d", i, l.Anchor, l.ExclusiveZone)
		}
		if l.KeyboardMode != wlclient.KeyboardInteractivityExclusive {
			t.Errorf("surface %d keyboard mode = %d, want exclusive", i, l.KeyboardMode)
		}
		if !l.Destroyed {
			t.Errorf("surface %d not torn down", i)
		}
	}
	if l := layers[0]; l.Width != 2560 || l.Height != 1440 {
		t.Errorf("first surface size = %dx%d, want 2560x1440", l.Width, l.Height)
	}
	if l := layers[1]; l.Width != 1536 || l.Height != 864 {
		t.Errorf("second surface size = %dx%d, want 1536x864", l.Width, l.Height)
	}

	for i, s := range comp.Surfaces() {
		if !s.Destroyed {
			t.Errorf("wl_surface %d not destroyed", i)
		}
		if !s.ViewportSource {
			t.Errorf("wl_surface %d viewport source never set", i)
		}
	}
	for id, b := range comp.Buffers() {
		if !b.Destroyed {
			t.Errorf("buffer %d not destroyed", id)
		}
	}

	wantPools := []int32{2560 * 4 * 1440, 1920 * 4 * 1080}
	pools := comp.PoolSizes()
	if len(pools) != len(wantPools) {
		t.Fatalf("pools = %v, want %v", pools, wantPools)
	}
	for i := range pools {
		if pools[i] != wantPools[i] {
			t.Errorf("pool %d size = %d, want %d", i, pools[i], wantPools[i])
		}
	}
}

func TestEscapeDismisses(t *testing.T) {
	comp, sess, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
	}, config.Default())
	waitPresented(t, comp, 1)

	if err := awaitExit(t, errCh, func() { comp.SendKey(wltest.KeyEsc, wlclient.KeyStatePressed) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.ExitReason(); got != input.ReasonEscape {
		t.Errorf("exit reason = %v, want escape key", got)
	}
}

func TestHideCursorPropagates(t *testing.T) {
	cfg := config.Default()
	cfg.Freeze.HideCursor = true

	comp, _, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
	}, cfg)
	waitPresented(t, comp, 1)

	if err := awaitExit(t, errCh, func() { comp.Click(wltest.BtnLeft) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	frames := comp.Frames()
	if len(frames) != 1 || frames[0].OverlayCursor {
		t.Errorf("frames = %+v, want one capture without the cursor", frames)
	}
}

func TestEarlyClickIgnored(t *testing.T) {
	comp, sess, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs:    []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
		HoldFrames: true,
	}, config.Default())

	// Click while the copy is still pending: the freeze is not showing
	// yet, so this must not count as a dismissal.
	comp.Eventually(func() bool {
		frames := comp.Frames()
		return len(frames) == 1 && frames[0].Copied
	}, "capture to reach the copy")
	comp.Click(wltest.BtnLeft)
	comp.ReleaseFrames()

	waitPresented(t, comp, 1)
	if err := awaitExit(t, errCh, func() { comp.SendKey(wltest.KeyEsc, wlclient.KeyStatePressed) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.ExitReason(); got != input.ReasonEscape {
		t.Errorf("exit reason = %v, want escape key (early click must be swallowed)", got)
	}
}

func TestCaptureFailureAbortsCleanly(t *testing.T) {
	comp, _, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{
			{Name: "DP-1", Width: 800, Height: 600, Scale: 1},
			{Name: "HDMI-A-1", Width: 640, Height: 480, Scale: 1},
		},
		FailCapture: map[string]bool{"HDMI-A-1": true},
	}, config.Default())

	err := waitErr(t, errCh)
	var cfErr *freeze.CaptureFailedError
	if !errors.As(err, &cfErr) {
		t.Fatalf("Run = %v, want a capture failure", err)
	}
	if cfErr.Output != "HDMI-A-1" {
		t.Errorf("failed output = %q, want HDMI-A-1", cfErr.Output)
	}

	// Nothing was ever presented and every allocation is rolled back.
	if n := len(comp.LayerSurfaces()); n != 0 {
		t.Errorf("compositor saw %d layer surfaces, want none", n)
	}
	comp.Eventually(func() bool {
		for _, f := range comp.Frames() {
			if !f.Destroyed {
				return false
			}
		}
		for _, b := range comp.Buffers() {
			if !b.Destroyed {
				return false
			}
		}
		return true
	}, "frames and buffers to be released")
}

func TestMissingScreencopyGlobal(t *testing.T) {
	_, _, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
		Omit:    []string{wlclient.InterfaceScreencopyManager},
	}, config.Default())

	err := waitErr(t, errCh)
	var mcErr *freeze.MissingCapabilityError
	if !errors.As(err, &mcErr) {
		t.Fatalf("Run = %v, want a missing capability error", err)
	}
	if mcErr.Interface != wlclient.InterfaceScreencopyManager {
		t.Errorf("missing interface = %q, want %q", mcErr.Interface, wlclient.InterfaceScreencopyManager)
	}
}

func TestNoOutputs(t *testing.T) {
	_, _, errCh := startSession(t, context.Background(), wltest.Options{}, config.Default())
	if err := waitErr(t, errCh); !errors.Is(err, output.ErrNoOutputs) {
		t.Fatalf("Run = %v, want ErrNoOutputs", err)
	}
}

func TestBeforeCommandDelaysCapture(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "before")
	cfg := config.Default()
	cfg.Command.BeforeCmd = "touch " + marker
	cfg.Command.BeforeTimeout = 200 * time.Millisecond

	start := time.Now()
	comp, _, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
	}, cfg)

	comp.Eventually(func() bool { return len(comp.Frames()) == 1 }, "capture to start")
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("capture started after %v, want the full 200ms delay first", elapsed)
	}
	waitForFile(t, marker)

	waitPresented(t, comp, 1)
	if err := awaitExit(t, errCh, func() { comp.Click(wltest.BtnLeft) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAfterCommandRunsAfterTeardown(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "after")
	cfg := config.Default()
	cfg.Command.AfterCmd = "touch " + marker
	cfg.Command.AfterTimeout = 50 * time.Millisecond

	comp, sess, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
	}, cfg)
	waitPresented(t, comp, 1)

	if err := awaitExit(t, errCh, func() { comp.Click(wltest.BtnLeft) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	comp.Eventually(func() bool {
		for _, l := range comp.LayerSurfaces() {
			if !l.Destroyed {
				return false
			}
		}
		return true
	}, "surfaces to come down")
	waitForFile(t, marker)
	if got := sess.Phase(); got != freeze.PhaseTerminated {
		t.Errorf("phase = %v, want terminated", got)
	}
}

func TestLayerClosedDismisses(t *testing.T) {
	comp, sess, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
	}, config.Default())
	waitPresented(t, comp, 1)

	comp.CloseLayer(0)
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.ExitReason(); got != input.ReasonClosed {
		t.Errorf("exit reason = %v, want surface closed", got)
	}
	for i, l := range comp.LayerSurfaces() {
		if !l.Destroyed {
			t.Errorf("surface %d not torn down", i)
		}
	}
}

func TestContextCancelAbortsCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	comp, _, errCh := startSession(t, ctx, wltest.Options{
		Outputs:    []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
		HoldFrames: true,
	}, config.Default())

	comp.Eventually(func() bool {
		frames := comp.Frames()
		return len(frames) == 1 && frames[0].Copied
	}, "capture to reach the copy")
	cancel()

	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	comp.Eventually(func() bool {
		for _, f := range comp.Frames() {
			if !f.Destroyed {
				return false
			}
		}
		for _, b := range comp.Buffers() {
			if !b.Destroyed {
				return false
			}
		}
		return true
	}, "capture state to be released")
}

func TestScreencopyVersion2(t *testing.T) {
	comp, sess, errCh := startSession(t, context.Background(), wltest.Options{
		Outputs:           []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
		ScreencopyVersion: 2,
	}, config.Default())
	waitPresented(t, comp, 1)

	if err := awaitExit(t, errCh, func() { comp.Click(wltest.BtnLeft) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.ExitReason(); got != input.ReasonPointer {
		t.Errorf("exit reason = %v, want pointer button", got)
	}
	frames := comp.Frames()
	if len(frames) != 1 || !frames[0].Completed {
		t.Fatalf("frames = %+v, want one completed capture", frames)
	}
}
