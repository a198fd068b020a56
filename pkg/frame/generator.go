package frame

import (
	"bytes"
	"fmt"
)

// Pattern selects what a Generator draws.
type Pattern string

const (
	// PatternGray fills every plane with 128: mid-gray luma, neutral chroma.
	PatternGray Pattern = "gray"
	// PatternBars draws seven vertical color bars.
	PatternBars Pattern = "bars"
)

// barColors are 0xRRGGBB, left to right.
var barColors = [7]uint32{0xffffff, 0xffff00, 0x00ffff, 0x00ff00, 0xff00ff, 0xff0000, 0x0000ff}

// Generator renders a pattern once and stamps out copies of it.
type Generator struct {
	format   Format
	pattern  Pattern
	template []byte
}

// NewGenerator creates a generator for planar YUV or GRAY8 formats.
func NewGenerator(format Format, pattern Pattern) (*Generator, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	switch format.PixelFormat {
	case I420, YV12, GRAY8:
	default:
		return nil, fmt.Errorf("%w: cannot generate %s", ErrUnsupportedFormat, format.PixelFormat)
	}
	planes, size, err := format.PixelFormat.layout(format.Width, format.Height)
	if err != nil {
		return nil, err
	}

	g := &Generator{format: format, pattern: pattern}
	switch pattern {
	case PatternGray, "":
		g.pattern = PatternGray
		g.template = bytes.Repeat([]byte{128}, size)
	case PatternBars:
		g.template = make([]byte, size)
		renderBars(g.template, format, planes)
	default:
		return nil, fmt.Errorf("unknown pattern %q", pattern)
	}
	return g, nil
}

// Format returns the format of generated frames.
func (g *Generator) Format() Format {
	return g.format
}

// Pattern returns the pattern being drawn.
func (g *Generator) Pattern() Pattern {
	return g.pattern
}

// Fill copies one rendered frame into data and returns the number of bytes written.
func (g *Generator) Fill(data []byte) int {
	return copy(data, g.template)
}

// Frame returns a new frame with sequence number seq.
func (g *Generator) Frame(seq uint64) *Frame {
	data := make([]byte, len(g.template))
	g.Fill(data)
	return &Frame{
		Seq:      seq,
		PTS:      g.format.Timestamp(seq),
		Duration: g.format.FrameDuration(),
		Format:   g.format,
		Data:     data,
	}
}

// rgbToYUV converts with BT.601 limited range integer coefficients.
func rgbToYUV(c uint32) (y, u, v byte) {
	r, g, b := int(c>>16&0xff), int(c>>8&0xff), int(c&0xff)
	y = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
	u = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
	v = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
	return y, u, v
}

func renderBars(data []byte, format Format, planes []plane) {
	bar := func(x int) (y, u, v byte) {
		return rgbToYUV(barColors[x*len(barColors)/format.Width])
	}

	luma := planes[0]
	for row := 0; row < luma.height; row++ {
		line := data[luma.offset+row*luma.stride:]
		for x := 0; x < luma.width; x++ {
			line[x], _, _ = bar(x)
		}
	}
	if len(planes) < 3 {
		return
	}

	// I420 stores U then V, YV12 stores V then U.
	uPlane, vPlane := planes[1], planes[2]
	if format.PixelFormat == YV12 {
		uPlane, vPlane = vPlane, uPlane
	}
	for row := 0; row < uPlane.height; row++ {
		uLine := data[uPlane.offset+row*uPlane.stride:]
		vLine := data[vPlane.offset+row*vPlane.stride:]
		for x := 0; x < uPlane.width; x++ {
			lx := x * 2
			if lx >= format.Width {
				lx = format.Width - 1
			}
			_, u, v := bar(lx)
			uLine[x], vLine[x] = u, v
		}
	}
}
