package wlclient

import "github.com/wayfreeze/wayfreeze/pkg/wlclient/wire"

const (
	screencopyManagerCaptureOutput = 0
	screencopyManagerDestroy       = 2

	screencopyFrameCopy    = 0
	screencopyFrameDestroy = 1

	frameEvtBuffer     = 0
	frameEvtFlags      = 1
	frameEvtReady      = 2
	frameEvtFailed     = 3
	frameEvtBufferDone = 6
)

// FrameFlagYInvert marks a frame whose rows are stored bottom-up.
const FrameFlagYInvert uint32 = 1

// ScreencopyManager is the zwlr_screencopy_manager_v1 global.
type ScreencopyManager struct {
	object
	version uint32
}

// Version is the version the manager was bound at. Before version 3
// there is no buffer_done event; the copy request follows the first
// buffer event instead.
func (s *ScreencopyManager) Version() uint32 { return s.version }

// CaptureOutput starts a capture of a whole output. With overlayCursor
// true the cursor is composited into the frame.
func (s *ScreencopyManager) CaptureOutput(output *Output, overlayCursor bool) (*ScreencopyFrame, error) {
	f := &ScreencopyFrame{object{s.c, s.c.newID(kindScreencopyFrame)}}
	var cursor int32
	if overlayCursor {
		cursor = 1
	}
	m := wire.NewMessage(s.id, screencopyManagerCaptureOutput).
		PutUint(f.id).
		PutInt(cursor).
		PutUint(output.id)
	if err := s.c.request("zwlr_screencopy_manager_v1.capture_output", m); err != nil {
		return nil, err
	}
	return f, nil
}

// Destroy destroys the manager; outstanding frames keep going.
func (s *ScreencopyManager) Destroy() error {
	return s.c.request("zwlr_screencopy_manager_v1.destroy", wire.NewMessage(s.id, screencopyManagerDestroy))
}

// ScreencopyFrame is a zwlr_screencopy_frame_v1, one capture in flight.
type ScreencopyFrame struct {
	object
}

// FrameBufferEvent names shm buffer parameters the compositor will copy
// into.
type FrameBufferEvent struct {
	Frame  uint32
	Format uint32
	Width  uint32
	Height uint32
	Stride uint32
}

func (FrameBufferEvent) String() string { return "zwlr_screencopy_frame_v1.buffer" }

// FrameFlagsEvent carries frame flags, sent before ready.
type FrameFlagsEvent struct {
	Frame uint32
	Flags uint32
}

func (FrameFlagsEvent) String() string { return "zwlr_screencopy_frame_v1.flags" }

// FrameReadyEvent means the copy finished and the buffer holds the
// frame.
type FrameReadyEvent struct {
	Frame   uint32
	TvSecHi uint32
	TvSecLo uint32
	TvNsec  uint32
}

func (FrameReadyEvent) String() string { return "zwlr_screencopy_frame_v1.ready" }

// FrameFailedEvent means the capture cannot complete.
type FrameFailedEvent struct {
	Frame uint32
}

func (FrameFailedEvent) String() string { return "zwlr_screencopy_frame_v1.failed" }

// FrameBufferDoneEvent closes the buffer parameter list; the client may
// pick a format and issue the copy. Sent since version 3.
type FrameBufferDoneEvent struct {
	Frame uint32
}

func (FrameBufferDoneEvent) String() string { return "zwlr_screencopy_frame_v1.buffer_done" }

func decodeScreencopyFrame(m *wire.Message) Event {
	switch m.Opcode {
	case frameEvtBuffer:
		return FrameBufferEvent{
			Frame:  m.Object,
			Format: m.Uint(),
			Width:  m.Uint(),
			Height: m.Uint(),
			Stride: m.Uint(),
		}
	case frameEvtFlags:
		return FrameFlagsEvent{Frame: m.Object, Flags: m.Uint()}
	case frameEvtReady:
		return FrameReadyEvent{
			Frame:   m.Object,
			TvSecHi: m.Uint(),
			TvSecLo: m.Uint(),
			TvNsec:  m.Uint(),
		}
	case frameEvtFailed:
		return FrameFailedEvent{Frame: m.Object}
	case frameEvtBufferDone:
		return FrameBufferDoneEvent{Frame: m.Object}
	}
	return nil
}

// Copy asks the compositor to copy the frame into the buffer and send
// ready or failed.
func (f *ScreencopyFrame) Copy(b *Buffer) error {
	return f.c.request("zwlr_screencopy_frame_v1.copy", wire.NewMessage(f.id, screencopyFrameCopy).PutUint(b.id))
}

// Destroy destroys the frame object.
func (f *ScreencopyFrame) Destroy() error {
	return f.c.request("zwlr_screencopy_frame_v1.destroy", wire.NewMessage(f.id, screencopyFrameDestroy))
}
