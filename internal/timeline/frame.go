package timeline

import "fmt"

// Frame is a point in time at which at least one Action changes the
// visible scene. Actions within a frame are applied in source-scan
// order: images (show then hide), then drawings (show then hide), then
// pan/zoom, then cursor.
type Frame struct {
	Timestamp float64
	Actions   []Action
	// CapturePath is written once by the render pool when the PNG for
	// this frame exists on disk; empty until then.
	CapturePath string
}

// Partition is a half-open [Start, End) interval of timeline time
// assignable to one renderer worker.
type Partition struct {
	Start, End float64
}

// FrameFileName is the canonical "<timestamp>.png" capture file name for a
// frame at ts, keyed off the same millisecond precision the compiler uses
// internally so two frames that collapsed into one bucket never produce
// two file names.
func FrameFileName(ts float64) string {
	ms := key(ts)
	secs := ms / 1000
	rem := ms % 1000
	if rem == 0 {
		return fmt.Sprintf("%d.0.png", secs)
	}
	return fmt.Sprintf("%d.%03d.png", secs, rem)
}
