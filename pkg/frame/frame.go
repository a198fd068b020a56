// Package frame describes raw video frames and produces synthetic ones.
package frame

import "time"

// Frame is one raw video frame.
//
// Frames handed out by a pipeline callback may reference memory owned by the
// pipeline; Data is only valid for the duration of that callback.
type Frame struct {
	Seq      uint64
	PTS      time.Duration
	Duration time.Duration
	Format   Format
	Data     []byte
}

// Size returns the number of payload bytes.
func (f *Frame) Size() int {
	return len(f.Data)
}
