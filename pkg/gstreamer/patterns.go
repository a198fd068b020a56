package gstreamer

import (
	"fmt"
	"sort"
)

// DefaultPattern is the videotestsrc pattern used by the capture pipeline.
const DefaultPattern = "smpte100"

// patterns maps videotestsrc pattern nicks to their enum values.
var patterns = map[string]int{
	"smpte":             0,
	"snow":              1,
	"black":             2,
	"white":             3,
	"red":               4,
	"green":             5,
	"blue":              6,
	"checkers-1":        7,
	"checkers-2":        8,
	"checkers-4":        9,
	"checkers-8":        10,
	"circular":          11,
	"blink":             12,
	"smpte75":           13,
	"zone-plate":        14,
	"gamut":             15,
	"chroma-zone-plate": 16,
	"solid-color":       17,
	"ball":              18,
	"smpte100":          19,
	"bar":               20,
	"pinwheel":          21,
	"spokes":            22,
	"gradient":          23,
	"colors":            24,
}

// PatternValue returns the enum value of a videotestsrc pattern nick.
// An empty name selects DefaultPattern.
func PatternValue(name string) (int, error) {
	if name == "" {
		name = DefaultPattern
	}
	v, ok := patterns[name]
	if !ok {
		return 0, fmt.Errorf("unknown videotestsrc pattern %q", name)
	}
	return v, nil
}

// PatternNames lists the known pattern nicks in enum order.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return patterns[names[i]] < patterns[names[j]] })
	return names
}
