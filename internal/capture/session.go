// Package capture drives one wlr-screencopy capture per output: request
// the frame, allocate a buffer for the announced parameters, copy, and
// report ready or failed.
package capture

import (
	"fmt"

	"github.com/wayfreeze/wayfreeze/internal/buffer"
	"github.com/wayfreeze/wayfreeze/internal/output"
	"github.com/wayfreeze/wayfreeze/pkg/wlclient"
)

// State of a capture session.
type State int

const (
	// StatePending covers everything between the capture request and
	// the compositor's verdict.
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is one in-flight capture.
type Session struct {
	Output *output.Output

	store      *buffer.Store
	frame      *wlclient.ScreencopyFrame
	version    uint32
	buf        *buffer.Buffer
	state      State
	copyIssued bool
	frameGone  bool
}

// Begin asks the compositor to capture the output. With hideCursor the
// cursor is left out of the frame; otherwise it is composited in.
func Begin(mgr *wlclient.ScreencopyManager, store *buffer.Store, out *output.Output, hideCursor bool) (*Session, error) {
	frame, err := mgr.CaptureOutput(out.WL, !hideCursor)
	if err != nil {
		return nil, err
	}
	return &Session{
		Output:  out,
		store:   store,
		frame:   frame,
		version: mgr.Version(),
	}, nil
}

// FrameID is the protocol id events for this capture carry.
func (s *Session) FrameID() uint32 {
	return s.frame.ID()
}

// State reports where the capture stands.
func (s *Session) State() State {
	return s.state
}

// HandleBufferParams answers the compositor's shm buffer offer by
// allocating a buffer of exactly the advertised size. Only the first
// offer counts. Before protocol version 3 there is no buffer_done
// event, so the copy is issued here.
func (s *Session) HandleBufferParams(ev wlclient.FrameBufferEvent) error {
	if s.buf != nil {
		return nil
	}
	buf, err := s.store.Allocate(int32(ev.Width), int32(ev.Height), int32(ev.Stride), ev.Format)
	if err != nil {
		return fmt.Errorf("capture of %s: %w", s.Output.Label(), err)
	}
	s.buf = buf
	if s.version < 3 {
		return s.copy()
	}
	return nil
}

// HandleBufferDone issues the copy once the compositor has finished
// listing buffer options.
func (s *Session) HandleBufferDone() error {
	if s.buf == nil {
		return fmt.Errorf("capture of %s: compositor offered no usable shm buffer", s.Output.Label())
	}
	return s.copy()
}

func (s *Session) copy() error {
	if s.copyIssued {
		return nil
	}
	s.copyIssued = true
	return s.frame.Copy(s.buf.WL())
}

// HandleReady marks the capture complete and drops the frame object.
func (s *Session) HandleReady() error {
	s.state = StateReady
	return s.destroyFrame()
}

// HandleFailed marks the capture failed and drops the frame object. The
// buffer stays with the session until Abort.
func (s *Session) HandleFailed() error {
	s.state = StateFailed
	return s.destroyFrame()
}

// TakeBuffer moves the captured buffer out of the session, to the
// presenter. Only valid once the session is ready.
func (s *Session) TakeBuffer() *buffer.Buffer {
	b := s.buf
	s.buf = nil
	return b
}

// Abort releases whatever the session still owns. Safe to call in any
// state.
func (s *Session) Abort() error {
	err := s.destroyFrame()
	if s.buf != nil {
		if rerr := s.store.Release(s.buf); rerr != nil && err == nil {
			err = rerr
		}
		s.buf = nil
	}
	return err
}

func (s *Session) destroyFrame() error {
	if s.frameGone {
		return nil
	}
	s.frameGone = true
	return s.frame.Destroy()
}
