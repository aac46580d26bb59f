package present_test

import (
	"testing"

	"github.com/wayfreeze/wayfreeze/internal/buffer"
	"github.com/wayfreeze/wayfreeze/internal/output"
	"github.com/wayfreeze/wayfreeze/internal/present"
	"github.com/wayfreeze/wayfreeze/internal/scale"
	"github.com/wayfreeze/wayfreeze/internal/wltest"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

func newPresenter(b *wltest.Bound, store *buffer.Store) *present.Presenter {
	return present.NewPresenter(b.Compositor, b.Viewporter, b.ScaleMgr, b.Shell, store)
}

func testOutput(b *wltest.Bound, i int, name string, w, h int32, factor scale.Factor, transform int32) *output.Output {
	return &output.Output{
		WL:          b.Outputs[i],
		Name:        name,
		PixelWidth:  w,
		PixelHeight: h,
		Scale:       factor,
		Transform:   transform,
	}
}

func allocate(t *testing.T, store *buffer.Store, w, h int32) *buffer.Buffer {
	t.Helper()
	buf, err := store.Allocate(w, h, w*4, wlclient.FormatXrgb8888)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	return buf
}

// pumpUntilCommitted routes configure and scale events into the
// presenter until the given number of surfaces show their frame.
func pumpUntilCommitted(t *testing.T, client *wlclient.Client, p *present.Presenter, want int) {
	t.Helper()
	for p.CommittedCount() < want {
		switch ev := wltest.NextEvent(t, client).(type) {
		case wlclient.LayerConfigureEvent:
			if err := p.HandleConfigure(ev); err != nil {
				t.Fatalf("HandleConfigure: %v", err)
			}
		case wlclient.PreferredScaleEvent:
			if err := p.HandlePreferredScale(ev); err != nil {
				t.Fatalf("HandlePreferredScale: %v", err)
			}
		}
	}
}

func TestPresentLifecycle(t *testing.T) {
	comp, client := wltest.Start(t, wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 1920, Height: 1080, Scale: 1}},
	})
	b := wltest.Bootstrap(t, client)
	store := buffer.NewStore(b.Shm)
	p := newPresenter(b, store)
	out := testOutput(b, 0, "DP-1", 1920, 1080, scale.FromInteger(1), wlclient.TransformNormal)
	buf := allocate(t, store, 1920, 1080)

	s, err := p.Present(out, buf)
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if got := s.State(); got != present.StateCreated {
		t.Fatalf("state after Present = %v, want created", got)
	}
	if w, h := s.Destination(); w != 1920 || h != 1080 {
		t.Errorf("destination = %dx%d, want 1920x1080", w, h)
	}

	pumpUntilCommitted(t, client, p, 1)
	if got := s.State(); got != present.StateCommitted {
		t.Fatalf("state after configure = %v, want committed", got)
	}
	wltest.Roundtrip(t, client)

	layers := comp.LayerSurfaces()
	if len(layers) != 1 {
		t.Fatalf("compositor saw %d layer surfaces, want 1", len(layers))
	}
	l := layers[0]
	if l.Namespace != present.Namespace {
		t.Errorf("namespace = %q, want %q", l.Namespace, present.Namespace)
	}
	if l.Output != "DP-1" {
		t.Errorf("layer surface output = %q, want DP-1", l.Output)
	}
	if l.Layer != wlclient.LayerOverlay {
		t.Errorf("layer = %d, want overlay", l.Layer)
	}
	if l.Anchor != wlclient.AnchorAll {
		t.Errorf("anchor = %#x, want all edges", l.Anchor)
	}
	if l.ExclusiveZone != -1 {
		t.Errorf("exclusive zone = %d, want -1", l.ExclusiveZone)
	}
	if l.KeyboardMode != wlclient.KeyboardInteractivityExclusive {
		t.Errorf("keyboard interactivity = %d, want exclusive", l.KeyboardMode)
	}
	if l.Width != 1920 || l.Height != 1080 {
		t.Errorf("layer size = %dx%d, want 1920x1080", l.Width, l.Height)
	}
	if l.Acks != 1 {
		t.Errorf("acks = %d, want 1", l.Acks)
	}

	surfs := comp.Surfaces()
	if len(surfs) != 1 {
		t.Fatalf("compositor saw %d surfaces, want 1", len(surfs))
	}
	sv := surfs[0]
	if sv.Commits != 2 {
		t.Errorf("commits = %d, want 2 (bare then attach)", sv.Commits)
	}
	if sv.LastBuffer == 0 {
		t.Error("no buffer attached at the final commit")
	}
	if sv.BufferScale != 1 {
		t.Errorf("buffer scale = %d, want 1", sv.BufferScale)
	}
	if !sv.ViewportSource {
		t.Error("viewport source was never reset to the full buffer")
	}
	if sv.ViewportWidth != 1920 || sv.ViewportHeight != 1080 {
		t.Errorf("viewport destination = %dx%d, want 1920x1080", sv.ViewportWidth, sv.ViewportHeight)
	}

	if err := p.Teardown(s); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if err := p.Teardown(s); err != nil {
		t.Errorf("second Teardown = %v, want nil", err)
	}
	wltest.Roundtrip(t, client)

	if got := comp.LayerSurfaces()[0]; !got.Destroyed {
		t.Error("layer surface not destroyed")
	}
	if got := comp.Surfaces()[0]; !got.Destroyed {
		t.Error("surface not destroyed")
	}
	for id, info := range comp.Buffers() {
		if !info.Destroyed {
			t.Errorf("buffer %d not destroyed", id)
		}
	}
	if got := store.Outstanding(); got != 0 {
		t.Errorf("Outstanding = %d, want 0", got)
	}
}

func TestPresentScaledAndTransformed(t *testing.T) {
	comp, client := wltest.Start(t, wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-2", Width: 1920, Height: 1080, Scale: 1}},
	})
	b := wltest.Bootstrap(t, client)
	store := buffer.NewStore(b.Shm)
	p := newPresenter(b, store)

	// A rotated output at 1.5x: the buffer is landscape, the surface
	// portrait.
	out := testOutput(b, 0, "DP-2", 1920, 1080, scale.Factor(180), wlclient.Transform90)
	buf := allocate(t, store, 1920, 1080)

	s, err := p.Present(out, buf)
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if w, h := s.Destination(); w != 720 || h != 1280 {
		t.Errorf("destination = %dx%d, want 720x1280", w, h)
	}

	pumpUntilCommitted(t, client, p, 1)
	wltest.Roundtrip(t, client)

	l := comp.LayerSurfaces()[0]
	if l.Width != 720 || l.Height != 1280 {
		t.Errorf("layer size = %dx%d, want 720x1280", l.Width, l.Height)
	}
	sv := comp.Surfaces()[0]
	if sv.BufferTransform != wlclient.Transform90 {
		t.Errorf("buffer transform = %d, want %d", sv.BufferTransform, wlclient.Transform90)
	}
	if sv.ViewportWidth != 720 || sv.ViewportHeight != 1280 {
		t.Errorf("viewport destination = %dx%d, want 720x1280", sv.ViewportWidth, sv.ViewportHeight)
	}

	if err := p.TeardownAll(); err != nil {
		t.Fatalf("TeardownAll: %v", err)
	}
}

func TestPreferredScaleRecommits(t *testing.T) {
	comp, client := wltest.Start(t, wltest.Options{
		Outputs: []wltest.OutputConfig{{Name: "DP-1", Width: 1920, Height: 1080, Scale: 1}},
	})
	b := wltest.Bootstrap(t, client)
	store := buffer.NewStore(b.Shm)
	p := newPresenter(b, store)
	out := testOutput(b, 0, "DP-1", 1920, 1080, scale.FromInteger(1), wlclient.TransformNormal)
	buf := allocate(t, store, 1920, 1080)

	s, err := p.Present(out, buf)
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	pumpUntilCommitted(t, client, p, 1)

	// The compositor prefers 1.5x: the surface shrinks to 1280x720 and
	// recommits.
	comp.SendPreferredScale(0, 150)
	ev, ok := wltest.NextEvent(t, client).(wlclient.PreferredScaleEvent)
	if !ok {
		t.Fatal("expected a preferred scale event")
	}
	if err := p.HandlePreferredScale(ev); err != nil {
		t.Fatalf("HandlePreferredScale: %v", err)
	}
	if out.Scale != scale.Factor(150) {
		t.Errorf("output scale = %v, want 150/120", out.Scale)
	}
	if w, h := s.Destination(); w != 1536 || h != 864 {
		t.Errorf("destination = %dx%d, want 1536x864", w, h)
	}
	wltest.Roundtrip(t, client)

	l := comp.LayerSurfaces()[0]
	if l.Width != 1536 || l.Height != 864 {
		t.Errorf("layer size = %dx%d, want 1536x864", l.Width, l.Height)
	}
	sv := comp.Surfaces()[0]
	if sv.ViewportWidth != 1536 || sv.ViewportHeight != 864 {
		t.Errorf("viewport destination = %dx%d, want 1536x864", sv.ViewportWidth, sv.ViewportHeight)
	}
	if sv.Commits != 3 {
		t.Errorf("commits = %d, want 3 after the resize", sv.Commits)
	}

	// The same scale again changes nothing, so the echo a recommit can
	// trigger dies out.
	comp.SendPreferredScale(0, 150)
	ev, ok = wltest.NextEvent(t, client).(wlclient.PreferredScaleEvent)
	if !ok {
		t.Fatal("expected a preferred scale event")
	}
	if err := p.HandlePreferredScale(ev); err != nil {
		t.Fatalf("HandlePreferredScale: %v", err)
	}
	wltest.Roundtrip(t, client)
	if got := comp.Surfaces()[0].Commits; got != 3 {
		t.Errorf("commits after repeated scale = %d, want still 3", got)
	}

	if err := p.TeardownAll(); err != nil {
		t.Fatalf("TeardownAll: %v", err)
	}
}

func TestPreferredScaleBeforeConfigure(t *testing.T) {
	comp, client := wltest.Start(t, wltest.Options{
		Outputs:         []wltest.OutputConfig{{Name: "DP-1", Width: 1920, Height: 1080, Scale: 1}},
		ManualConfigure: true,
	})
	b := wltest.Bootstrap(t, client)
	store := buffer.NewStore(b.Shm)
	p := newPresenter(b, store)
	out := testOutput(b, 0, "DP-1", 1920, 1080, scale.FromInteger(1), wlclient.TransformNormal)
	buf := allocate(t, store, 1920, 1080)

	s, err := p.Present(out, buf)
	if err != nil {
		t.Fatalf("Present: %v", err)
	}

	// Scale arrives before the first configure: the pending size is
	// updated but nothing commits yet.
	comp.SendPreferredScale(0, 240)
	ev, ok := wltest.NextEvent(t, client).(wlclient.PreferredScaleEvent)
	if !ok {
		t.Fatal("expected a preferred scale event")
	}
	if err := p.HandlePreferredScale(ev); err != nil {
		t.Fatalf("HandlePreferredScale: %v", err)
	}
	if got := s.State(); got != present.StateCreated {
		t.Fatalf("state = %v, want still created", got)
	}
	if w, h := s.Destination(); w != 960 || h != 540 {
		t.Errorf("destination = %dx%d, want 960x540", w, h)
	}
	wltest.Roundtrip(t, client)
	if got := comp.Surfaces()[0].Commits; got != 1 {
		t.Errorf("commits = %d, want 1 before configure", got)
	}

	comp.SendConfigure(0)
	pumpUntilCommitted(t, client, p, 1)
	wltest.Roundtrip(t, client)

	l := comp.LayerSurfaces()[0]
	if l.Width != 960 || l.Height != 540 {
		t.Errorf("layer size = %dx%d, want 960x540", l.Width, l.Height)
	}
	if got := comp.Surfaces()[0].Commits; got != 2 {
		t.Errorf("commits = %d, want 2", got)
	}

	if err := p.TeardownAll(); err != nil {
		t.Fatalf("TeardownAll: %v", err)
	}
}

func TestRepeatConfigureAcksWithoutReattach(t *testing.T) {
	comp, client := wltest.Start(t, wltest.Options{
		Outputs:         []wltest.OutputConfig{{Name: "DP-1", Width: 800, Height: 600, Scale: 1}},
		ManualConfigure: true,
	})
	b := wltest.Bootstrap(t, client)
	store := buffer.NewStore(b.Shm)
	p := newPresenter(b, store)
	out := testOutput(b, 0, "DP-1", 800, 600, scale.FromInteger(1), wlclient.TransformNormal)
	buf := allocate(t, store, 800, 600)

	if _, err := p.Present(out, buf); err != nil {
		t.Fatalf("Present: %v", err)
	}
	comp.SendConfigure(0)
	pumpUntilCommitted(t, client, p, 1)

	comp.SendConfigure(0)
	ev, ok := wltest.NextEvent(t, client).(wlclient.LayerConfigureEvent)
	if !ok {
		t.Fatal("expected a configure event")
	}
	if err := p.HandleConfigure(ev); err != nil {
		t.Fatalf("HandleConfigure: %v", err)
	}
	wltest.Roundtrip(t, client)

	if got := comp.LayerSurfaces()[0].Acks; got != 2 {
		t.Errorf("acks = %d, want 2", got)
	}
	if got := comp.Surfaces()[0].Commits; got != 2 {
		t.Errorf("commits = %d, want 2 (no reattach on repeat configure)", got)
	}

	if err := p.TeardownAll(); err != nil {
		t.Fatalf("TeardownAll: %v", err)
	}
}

func TestTeardownAllTwoOutputs(t *testing.T) {
	comp, client := wltest.Start(t, wltest.Options{
		Outputs: []wltest.OutputConfig{
			{Name: "DP-1", Width: 800, Height: 600, Scale: 1},
			{Name: "DP-2", Width: 640, Height: 480, Scale: 1},
		},
	})
	b := wltest.Bootstrap(t, client)
	store := buffer.NewStore(b.Shm)
	p := newPresenter(b, store)

	outs := []*output.Output{
		testOutput(b, 0, "DP-1", 800, 600, scale.FromInteger(1), wlclient.TransformNormal),
		testOutput(b, 1, "DP-2", 640, 480, scale.FromInteger(1), wlclient.TransformNormal),
	}
	for _, out := range outs {
		buf := allocate(t, store, out.PixelWidth, out.PixelHeight)
		if _, err := p.Present(out, buf); err != nil {
			t.Fatalf("Present %s: %v", out.Name, err)
		}
	}
	pumpUntilCommitted(t, client, p, 2)
	if got := p.CommittedCount(); got != 2 {
		t.Fatalf("CommittedCount = %d, want 2", got)
	}

	if err := p.TeardownAll(); err != nil {
		t.Fatalf("TeardownAll: %v", err)
	}
	wltest.Roundtrip(t, client)

	for i, l := range comp.LayerSurfaces() {
		if !l.Destroyed {
			t.Errorf("layer surface %d not destroyed", i)
		}
	}
	for i, s := range comp.Surfaces() {
		if !s.Destroyed {
			t.Errorf("surface %d not destroyed", i)
		}
	}
	if got := store.Outstanding(); got != 0 {
		t.Errorf("Outstanding = %d, want 0", got)
	}
	if got := p.CommittedCount(); got != 0 {
		t.Errorf("CommittedCount after teardown = %d, want 0", got)
	}
}
