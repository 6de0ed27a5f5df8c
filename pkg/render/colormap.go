package render

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Colormap maps a normalized value in [0, 1] to a color by linear
// interpolation between evenly spaced stops.
type Colormap struct {
	Name  string
	stops []color.RGBA
}

func rgb(hex uint32) color.RGBA {
	return color.RGBA{R: uint8(hex >> 16), G: uint8(hex >> 8), B: uint8(hex), A: 0xff}
}

var colormaps = map[string][]color.RGBA{
	"gray": {rgb(0x000000), rgb(0xffffff)},
	"terrain": {
		rgb(0x333399), rgb(0x0294fa), rgb(0x00cc66), rgb(0x99e599),
		rgb(0xfffe99), rgb(0xcbb87a), rgb(0x997755), rgb(0xcbbbb8), rgb(0xffffff),
	},
	"viridis": {
		rgb(0x440154), rgb(0x482878), rgb(0x3e4989), rgb(0x31688e), rgb(0x26828e),
		rgb(0x1f9e89), rgb(0x35b779), rgb(0x6ece58), rgb(0xb5de2b), rgb(0xfde725),
	},
	"magma": {
		rgb(0x000004), rgb(0x180f3d), rgb(0x440f76), rgb(0x721f81), rgb(0x9e2f7f),
		rgb(0xcd4071), rgb(0xf1605d), rgb(0xfd9668), rgb(0xfeca8d), rgb(0xfcfdbf),
	},
	"cividis": {
		rgb(0x00224e), rgb(0x123570), rgb(0x3b496c), rgb(0x575d6d), rgb(0x707173),
		rgb(0x8a8678), rgb(0xa59c74), rgb(0xc3b369), rgb(0xe1cc55), rgb(0xfee838),
	},
	"blues": {
		rgb(0xf7fbff), rgb(0xdeebf7), rgb(0xc6dbef), rgb(0x9ecae1), rgb(0x6baed6),
		rgb(0x4292c6), rgb(0x2171b5), rgb(0x08519c), rgb(0x08306b),
	},
	"coolwarm": {
		rgb(0x3b4cc0), rgb(0x6889ee), rgb(0x9abbff), rgb(0xc9d7f0), rgb(0xedd1c2),
		rgb(0xf7a889), rgb(0xe26952), rgb(0xb40426),
	},
}

var colormapAliases = map[string]string{
	"grey":  "gray",
	"greys": "gray",
}

// ColormapNames returns the known colormap names, without the "_r" variants.
func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupColormap resolves a colormap by case-insensitive name. A "_r"
// suffix reverses it.
func LookupColormap(name string) (*Colormap, error) {
	key := strings.ToLower(name)
	reversed := strings.HasSuffix(key, "_r")
	key = strings.TrimSuffix(key, "_r")
	if alias, ok := colormapAliases[key]; ok {
		key = alias
	}
	stops, ok := colormaps[key]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q", name)
	}
	out := append([]color.RGBA(nil), stops...)
	if reversed {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return &Colormap{Name: name, stops: out}, nil
}

// At returns the color for t, clamped to [0, 1].
func (c *Colormap) At(t float64) color.RGBA {
	if math.IsNaN(t) {
		return color.RGBA{}
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(c.stops)-1)
	i := int(pos)
	if i >= len(c.stops)-1 {
		return c.stops[len(c.stops)-1]
	}
	f := pos - float64(i)
	a, b := c.stops[i], c.stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

var namedColors = map[string]color.RGBA{
	"black":     rgb(0x000000),
	"white":     rgb(0xffffff),
	"gray":      rgb(0x808080),
	"grey":      rgb(0x808080),
	"lightgray": rgb(0xd3d3d3),
	"darkgray":  rgb(0x404040),
	"red":       rgb(0xff0000),
	"green":     rgb(0x008000),
	"blue":      rgb(0x0000ff),
	"navy":      rgb(0x000080),
	"orange":    rgb(0xffa500),
	"yellow":    rgb(0xffff00),
}

// ParseColor accepts a named color, "#rgb" or "#rrggbb".
func ParseColor(s string) (color.RGBA, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[key]; ok {
		return c, nil
	}
	hex, ok := strings.CutPrefix(key, "#")
	if !ok {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return rgb(uint32(v)), nil
}

// withAlpha returns c premultiplied by alpha in [0, 1].
func withAlpha(c color.RGBA, alpha float64) color.RGBA {
	alpha = math.Max(0, math.Min(1, alpha))
	scale := func(v uint8) uint8 { return uint8(math.Round(float64(v) * alpha)) }
	return color.RGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: scale(c.A)}
}
