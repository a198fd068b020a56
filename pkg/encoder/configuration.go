// Package encoder describes the element chains that turn raw frames into a
// container file.
package encoder

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

// Element is one element of an encoding chain.
type Element struct {
	Factory string
	Name    string
	// Properties hold values typed as the element's GLib property types:
	// bool, int (gint), uint (guint), int64 (gint64), string.
	Properties map[string]interface{}
	// Caps makes a capsfilter restrict its output to the given caps.
	Caps string
}

func (e Element) String() string {
	if e.Caps != "" {
		return e.Caps
	}
	parts := []string{e.Factory}
	if e.Name != "" {
		parts = append(parts, "name="+e.Name)
	}
	for k, v := range e.Properties {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

// PipelineConfiguration is the chain between the application source and the file sink.
type PipelineConfiguration struct {
	MimeType  string
	Elements  []Element
	Extension string

	bitrateProperty string
	bitrateDivisor  uint32
	// bitrateSigned marks encoders whose bitrate property is a gint, not a guint.
	bitrateSigned bool
}

// EncoderName is the element name given to the encoder in every chain.
const EncoderName = "encoder"

func encoder(factory string, props map[string]interface{}) Element {
	return Element{Factory: factory, Name: EncoderName, Properties: props}
}

// NewPipelineConfiguration picks the chain for mimeType on the given GOARCH.
// On arm the Jetson hardware encoders are used for H.264 and H.265.
func NewPipelineConfiguration(mimeType, goarch string) (*PipelineConfiguration, error) {
	if strings.HasPrefix(goarch, "arm") {
		switch mimeType {
		case webrtc.MimeTypeH264:
			return &PipelineConfiguration{
				MimeType: mimeType,
				Elements: []Element{
					{Factory: "nvvidconv"},
					{Factory: "capsfilter", Caps: "video/x-raw(memory:NVMM),format=I420"},
					encoder("nvv4l2h264enc", map[string]interface{}{"insert-sps-pps": true}),
					{Factory: "h264parse", Name: "parser"},
					{Factory: "mp4mux", Name: "muxer"},
				},
				Extension:       ".mp4",
				bitrateProperty: "bitrate",
				bitrateDivisor:  1,
			}, nil
		case webrtc.MimeTypeH265:
			return &PipelineConfiguration{
				MimeType: mimeType,
				Elements: []Element{
					{Factory: "nvvidconv"},
					{Factory: "capsfilter", Caps: "video/x-raw(memory:NVMM),format=I420"},
					encoder("nvv4l2h265enc", map[string]interface{}{"insert-sps-pps": true}),
					{Factory: "h265parse", Name: "parser"},
					{Factory: "mp4mux", Name: "muxer"},
				},
				Extension:       ".mp4",
				bitrateProperty: "bitrate",
				bitrateDivisor:  1,
			}, nil
		}
	}

	switch mimeType {
	case webrtc.MimeTypeH264:
		return &PipelineConfiguration{
			MimeType: mimeType,
			Elements: []Element{
				encoder("x264enc", nil),
				{Factory: "h264parse", Name: "parser"},
				{Factory: "mp4mux", Name: "muxer"},
			},
			Extension:       ".mp4",
			bitrateProperty: "bitrate",
			bitrateDivisor:  1000,
		}, nil
	case webrtc.MimeTypeH265:
		return &PipelineConfiguration{
			MimeType: mimeType,
			Elements: []Element{
				encoder("x265enc", nil),
				{Factory: "h265parse", Name: "parser"},
				{Factory: "mp4mux", Name: "muxer"},
			},
			Extension:       ".mp4",
			bitrateProperty: "bitrate",
			bitrateDivisor:  1000,
		}, nil
	case webrtc.MimeTypeVP8:
		return &PipelineConfiguration{
			MimeType: mimeType,
			Elements: []Element{
				encoder("vp8enc", map[string]interface{}{"deadline": int64(1)}),
				{Factory: "webmmux", Name: "muxer"},
			},
			Extension:       ".webm",
			bitrateProperty: "target-bitrate",
			bitrateDivisor:  1,
			bitrateSigned:   true,
		}, nil
	case webrtc.MimeTypeVP9:
		return &PipelineConfiguration{
			MimeType: mimeType,
			Elements: []Element{
				encoder("vp9enc", map[string]interface{}{"deadline": int64(1)}),
				{Factory: "webmmux", Name: "muxer"},
			},
			Extension:       ".webm",
			bitrateProperty: "target-bitrate",
			bitrateDivisor:  1,
			bitrateSigned:   true,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mime type %q", mimeType)
	}
}

// Bitrate returns the encoder property and value that set the given bits per
// second. The value has the Go type matching the property's GLib type.
func (p *PipelineConfiguration) Bitrate(bitrate uint32) (string, interface{}) {
	if p.bitrateSigned {
		return p.bitrateProperty, int(bitrate / p.bitrateDivisor)
	}
	return p.bitrateProperty, uint(bitrate / p.bitrateDivisor)
}

// String renders the chain in gst-launch syntax.
func (p *PipelineConfiguration) String() string {
	parts := make([]string, len(p.Elements))
	for i, e := range p.Elements {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ! ")
}

// MimeTypeFromName accepts a MIME type or a bare codec name such as "h264".
func MimeTypeFromName(name string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.ToLower(name), "video/")) {
	case "h264", "avc":
		return webrtc.MimeTypeH264, nil
	case "h265", "hevc":
		return webrtc.MimeTypeH265, nil
	case "vp8":
		return webrtc.MimeTypeVP8, nil
	case "vp9":
		return webrtc.MimeTypeVP9, nil
	}
	return "", fmt.Errorf("unknown codec %q", name)
}
