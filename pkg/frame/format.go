package frame

import (
	"errors"
	"fmt"
	"time"
)

// PixelFormat is a raw video format name as used in video/x-raw caps.
type PixelFormat string

const (
	I420  PixelFormat = "I420"
	YV12  PixelFormat = "YV12"
	NV12  PixelFormat = "NV12"
	RGB   PixelFormat = "RGB"
	BGR   PixelFormat = "BGR"
	RGBA  PixelFormat = "RGBA"
	BGRA  PixelFormat = "BGRA"
	RGBx  PixelFormat = "RGBx"
	BGRx  PixelFormat = "BGRx"
	YUY2  PixelFormat = "YUY2"
	UYVY  PixelFormat = "UYVY"
	GRAY8 PixelFormat = "GRAY8"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrInvalidFormat     = errors.New("invalid video format")
)

// plane describes where one plane of a frame lives in the buffer.
type plane struct {
	offset int
	stride int
	width  int
	height int
}

func roundUp2(v int) int { return (v + 1) &^ 1 }
func roundUp4(v int) int { return (v + 3) &^ 3 }

// layout returns the planes of a width x height frame and its total size,
// following GStreamer's default (4 byte) row alignment.
func (p PixelFormat) layout(width, height int) ([]plane, int, error) {
	switch p {
	case I420, YV12:
		ystride := roundUp4(width)
		cstride := roundUp4(roundUp2(width) / 2)
		cwidth := roundUp2(width) / 2
		cheight := roundUp2(height) / 2
		u := ystride * roundUp2(height)
		v := u + cstride*cheight
		return []plane{
			{offset: 0, stride: ystride, width: width, height: height},
			{offset: u, stride: cstride, width: cwidth, height: cheight},
			{offset: v, stride: cstride, width: cwidth, height: cheight},
		}, v + cstride*cheight, nil
	case NV12:
		stride := roundUp4(width)
		uv := stride * roundUp2(height)
		return []plane{
			{offset: 0, stride: stride, width: width, height: height},
			{offset: uv, stride: stride, width: roundUp2(width), height: roundUp2(height) / 2},
		}, uv + stride*(roundUp2(height)/2), nil
	case RGB, BGR:
		stride := roundUp4(width * 3)
		return []plane{{stride: stride, width: width * 3, height: height}}, stride * height, nil
	case RGBA, BGRA, RGBx, BGRx:
		stride := width * 4
		return []plane{{stride: stride, width: stride, height: height}}, stride * height, nil
	case YUY2, UYVY:
		stride := roundUp4(width * 2)
		return []plane{{stride: stride, width: width * 2, height: height}}, stride * height, nil
	case GRAY8:
		stride := roundUp4(width)
		return []plane{{stride: stride, width: width, height: height}}, stride * height, nil
	}
	return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(p))
}

// FrameSize returns the size in bytes of one frame, or zero if the format is unknown.
func (p PixelFormat) FrameSize(width, height int) int {
	_, size, err := p.layout(width, height)
	if err != nil {
		return 0
	}
	return size
}

// Format describes fixed-rate raw video.
type Format struct {
	PixelFormat PixelFormat
	Width       int
	Height      int
	FPS         int
}

// DefaultFormat is 640x480 I420 at 30 frames per second.
var DefaultFormat = Format{
	PixelFormat: I420,
	Width:       640,
	Height:      480,
	FPS:         30,
}

// Validate checks that the format can be negotiated.
func (f Format) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFormat, f.Width, f.Height)
	}
	if f.FPS <= 0 {
		return fmt.Errorf("%w: framerate %d", ErrInvalidFormat, f.FPS)
	}
	if _, _, err := f.PixelFormat.layout(f.Width, f.Height); err != nil {
		return err
	}
	return nil
}

// FrameSize is the number of bytes in one frame.
func (f Format) FrameSize() int {
	return f.PixelFormat.FrameSize(f.Width, f.Height)
}

// FrameDuration is the display duration of one frame.
func (f Format) FrameDuration() time.Duration {
	return f.Timestamp(1)
}

// Timestamp returns the presentation time of the n-th frame.
func (f Format) Timestamp(n uint64) time.Duration {
	if f.FPS <= 0 {
		return 0
	}
	return time.Duration(n * uint64(time.Second) / uint64(f.FPS))
}

// Caps returns the GStreamer caps string for the format.
func (f Format) Caps() string {
	return fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d,framerate=%d/1",
		f.PixelFormat, f.Width, f.Height, f.FPS)
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dx%d@%d", f.PixelFormat, f.Width, f.Height, f.FPS)
}
