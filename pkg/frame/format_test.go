package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormat_FrameSize(t *testing.T) {
	tests := []struct {
		format PixelFormat
		width  int
		height int
		size   int
	}{
		{I420, 640, 480, 460800},
		{YV12, 640, 480, 460800},
		{I420, 641, 481, 466576},
		{NV12, 640, 480, 460800},
		{RGB, 640, 480, 921600},
		{RGB, 641, 1, 1924},
		{RGBA, 640, 480, 1228800},
		{BGRx, 2, 2, 16},
		{YUY2, 640, 480, 614400},
		{GRAY8, 3, 2, 8},
		{"P010", 640, 480, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.size, tt.format.FrameSize(tt.width, tt.height), "%s %dx%d", tt.format, tt.width, tt.height)
	}
}

func TestFormat_Timing(t *testing.T) {
	f := DefaultFormat

	assert.Equal(t, time.Duration(33333333), f.FrameDuration())
	assert.Equal(t, time.Duration(0), f.Timestamp(0))
	assert.Equal(t, time.Second, f.Timestamp(30))
	assert.Equal(t, 10*time.Second, f.Timestamp(300))
}

func TestFormat_Caps(t *testing.T) {
	assert.Equal(t, "video/x-raw,format=I420,width=640,height=480,framerate=30/1", DefaultFormat.Caps())
}

func TestFormat_Validate(t *testing.T) {
	require.NoError(t, DefaultFormat.Validate())

	err := Format{PixelFormat: I420, Width: 0, Height: 480, FPS: 30}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidFormat))

	err = Format{PixelFormat: I420, Width: 640, Height: 480}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidFormat))

	err = Format{PixelFormat: "P010", Width: 640, Height: 480, FPS: 30}.Validate()
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
