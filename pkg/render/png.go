package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/topoviz/topoviz/pkg/engine"
	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/processors"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Flat figure layout in pixels.
const (
	marginLeft   = 72
	marginRight  = 16
	marginTop    = 34
	marginBottom = 50
	cbarWidth    = 14
	cbarSlot     = 96
	tickLength   = 4
	tickTarget   = 5
)

// Surface preview size in pixels.
const (
	surfaceWidth  = 800
	surfaceHeight = 600
)

var defaultFigsize = []float64{6.4, 4.8}

type theme struct {
	background color.RGBA
	foreground color.RGBA
	frame      color.RGBA
}

var themes = map[string]theme{
	"paper":          {background: rgb(0xffffff), foreground: rgb(0x000000), frame: rgb(0x000000)},
	"bw_paper":       {background: rgb(0xffffff), foreground: rgb(0x000000), frame: rgb(0x888888)},
	"color_pres":     {background: rgb(0xf6f7fb), foreground: rgb(0x0b0f1a), frame: rgb(0x0b0f1a)},
	"dark_pres_mono": {background: rgb(0x0e1117), foreground: rgb(0xe6e6e6), frame: rgb(0x3a3f4b)},
}

// StyleNames returns the flat figure styles the PNG renderer knows.
func StyleNames() []string {
	names := make([]string, 0, len(themes))
	for name := range themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupTheme(style string) (theme, error) {
	if style == "" {
		return themes["paper"], nil
	}
	t, ok := themes[strings.ToLower(strings.TrimSpace(style))]
	if !ok {
		return theme{}, fmt.Errorf("unknown style %q, available: %s", style, strings.Join(StyleNames(), ", "))
	}
	return t, nil
}

// PNGBuilder draws each layer set into a PNG preview: the flat figure with
// axes, ticks, labels and colorbars, and a lit top-down view of the surface.
type PNGBuilder struct {
	opts Options
}

// NewPNGBuilder creates a PNG builder.
func NewPNGBuilder(opts Options) *PNGBuilder {
	return &PNGBuilder{opts: opts.withDefaults()}
}

// Build implements engine.FigureBuilder.
func (b *PNGBuilder) Build(ctx context.Context, fig *engine.Figure) ([]string, error) {
	var artifacts []string
	for _, set := range fig.Sets {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		var (
			img *image.RGBA
			err error
		)
		if set.Context == spec.Context3D {
			img, err = renderSurface(fig, set)
		} else {
			img, err = renderFlat(fig, set, b.opts.DPI)
		}
		if err != nil {
			return artifacts, fmt.Errorf("%s figure: %w", set.Context, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return artifacts, fmt.Errorf("failed to encode png: %w", err)
		}
		path := outputPath(b.opts, fig, set.Context)
		if err := writeFile(path, buf.Bytes()); err != nil {
			return artifacts, err
		}
		log.Debug().Str("context", string(set.Context)).Str("path", path).Msg("Figure written")
		noteShow(fig, set.Context, path)
		artifacts = append(artifacts, path)
	}
	return artifacts, nil
}

func colormapFor(name string) *Colormap {
	cm, err := LookupColormap(name)
	if err != nil {
		log.Warn().Err(err).Str("fallback", mapobject.DefaultCmap).Msg("Using default colormap")
		cm, _ = LookupColormap(mapobject.DefaultCmap)
	}
	return cm
}

// colorize maps g through cm onto an image of g's shape. NaN cells stay
// transparent. A degenerate range draws every cell at the colormap middle.
func colorize(g *grid.Grid, cm *Colormap, vmin, vmax, alpha float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	span := vmax - vmin
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)
			if math.IsNaN(v) {
				continue
			}
			t := 0.5
			if span > 0 && !math.IsInf(span, 0) {
				t = (v - vmin) / span
			}
			img.SetRGBA(c, r, withAlpha(cm.At(t), alpha))
		}
	}
	return img
}

func layerRange(l mapobject.Layer) (float64, float64) {
	if l.Hint == "shade" {
		return 0, 1
	}
	s := l.Grid.Stats()
	return s.Min, s.Max
}

// view maps data coordinates onto a pixel rectangle. Flipped axes run
// right to left or bottom to top.
type view struct {
	ext          grid.Extent
	rect         image.Rectangle
	scale        float64
	flipX, flipY bool
}

func (v view) px(x float64) int {
	if v.flipX {
		return v.rect.Max.X - int(math.Round((x-v.ext.MinX)*v.scale))
	}
	return v.rect.Min.X + int(math.Round((x-v.ext.MinX)*v.scale))
}

func (v view) py(y float64) int {
	if v.flipY {
		return v.rect.Min.Y + int(math.Round((y-v.ext.MinY)*v.scale))
	}
	return v.rect.Min.Y + int(math.Round((v.ext.MaxY-y)*v.scale))
}

// fitView centers ext inside area keeping equal aspect.
func fitView(ext grid.Extent, area image.Rectangle) view {
	w, h := ext.MaxX-ext.MinX, ext.MaxY-ext.MinY
	scale := math.Min(float64(area.Dx())/w, float64(area.Dy())/h)
	dw, dh := int(math.Round(w*scale)), int(math.Round(h*scale))
	x0 := area.Min.X + (area.Dx()-dw)/2
	y0 := area.Min.Y + (area.Dy()-dh)/2
	return view{ext: ext, rect: image.Rect(x0, y0, x0+dw, y0+dh), scale: scale}
}

// dataExtent is the union of map extents, narrowed by axis limits. The
// extent is always ordered; limits given high to low set the flip flags.
func dataExtent(maps []*mapobject.MapObject, ax *Axis) (ext grid.Extent, flipX, flipY bool) {
	ext = grid.Extent{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}
	for i, m := range maps {
		e := m.Grid.Extent()
		if i == 0 {
			ext = e
			continue
		}
		ext.MinX, ext.MaxX = math.Min(ext.MinX, e.MinX), math.Max(ext.MaxX, e.MaxX)
		ext.MinY, ext.MaxY = math.Min(ext.MinY, e.MinY), math.Max(ext.MaxY, e.MaxY)
	}
	if ax.XLim != nil {
		ext.MinX, ext.MaxX = ax.XLim[0], ax.XLim[1]
		if flipX = ext.MinX > ext.MaxX; flipX {
			ext.MinX, ext.MaxX = ext.MaxX, ext.MinX
		}
	}
	if ax.YLim != nil {
		ext.MinY, ext.MaxY = ax.YLim[0], ax.YLim[1]
		if flipY = ext.MinY > ext.MaxY; flipY {
			ext.MinY, ext.MaxY = ext.MaxY, ext.MinY
		}
	}
	return ext, flipX, flipY
}

// drawGrid scales a colorized grid into dst at the rectangle its extent
// covers in v.
func drawGrid(dst *image.RGBA, v view, g *grid.Grid, img *image.RGBA) {
	e := g.Extent()
	dr := image.Rect(v.px(e.MinX), v.py(e.MaxY), v.px(e.MaxX), v.py(e.MinY))
	if dr.Empty() {
		return
	}
	if v.flipX || v.flipY {
		img = mirror(img, v.flipX, v.flipY)
	}
	draw.NearestNeighbor.Scale(dst, dr, img, img.Bounds(), draw.Over, nil)
}

// mirror returns a copy of img reversed along the flipped axes.
func mirror(img *image.RGBA, flipX, flipY bool) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		sy := y
		if flipY {
			sy = b.Max.Y - 1 - (y - b.Min.Y)
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			sx := x
			if flipX {
				sx = b.Max.X - 1 - (x - b.Min.X)
			}
			out.SetRGBA(x, y, img.RGBAAt(sx, sy))
		}
	}
	return out
}

func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func strokeRect(dst draw.Image, r image.Rectangle, c color.Color) {
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}

func renderFlat(fig *engine.Figure, set engine.LayerSet, dpi float64) (*image.RGBA, error) {
	f2 := fig.Fig2D()
	th, err := lookupTheme(f2.Style)
	if err != nil {
		return nil, err
	}
	size := f2.Figsize
	if len(size) != 2 {
		size = defaultFigsize
	}
	width, height := int(math.Round(size[0]*dpi)), int(math.Round(size[1]*dpi))

	actions, err := fig.Actions()
	if err != nil {
		return nil, err
	}
	axes := layoutAxes(set)
	if err := applyActions(axes, actions); err != nil {
		return nil, err
	}
	plotAx, cbars := &axes[0], axes[1:]

	area := image.Rect(marginLeft, marginTop, width-marginRight-len(cbars)*cbarSlot, height-marginBottom)
	if area.Dx() < 16 || area.Dy() < 16 {
		return nil, fmt.Errorf("figure %dx%d px is too small for %d colorbars", width, height, len(cbars))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(canvas, canvas.Bounds(), th.background)

	ext, flipX, flipY := dataExtent(set.Maps, plotAx)
	if !(ext.MaxX > ext.MinX) || !(ext.MaxY > ext.MinY) {
		return nil, fmt.Errorf("empty plot extent %+v", ext)
	}
	v := fitView(ext, area)
	v.flipX, v.flipY = flipX, flipY
	plot := canvas.SubImage(v.rect).(*image.RGBA)

	for _, m := range set.Maps {
		vmin, vmax := m.Range()
		drawGrid(plot, v, m.Grid, colorize(m.Grid, colormapFor(m.Display.Cmap), vmin, vmax, m.Display.Alpha))
		for _, l := range m.Derived {
			lmin, lmax := layerRange(l)
			drawGrid(plot, v, l.Grid, colorize(l.Grid, colormapFor(l.Display.Cmap), lmin, lmax, l.Display.Alpha))
		}
	}

	xMajor, xMinor := ticks(ext.MinX, ext.MaxX, tickTarget)
	yMajor, yMinor := ticks(ext.MinY, ext.MaxY, tickTarget)
	if plotAx.Crosses != nil {
		if err := drawCrosses(plot, v, plotAx.Crosses, xMajor, xMinor, yMajor, yMinor); err != nil {
			return nil, err
		}
	}
	strokeRect(canvas, v.rect, th.frame)

	lh := textHeight()
	for _, x := range xMajor {
		px := v.px(x)
		fillRect(canvas, image.Rect(px, v.rect.Max.Y, px+1, v.rect.Max.Y+tickLength), th.frame)
		drawTextAligned(canvas, tickLabel(x, plotAx.kmX()), px, v.rect.Max.Y+tickLength+lh, "center", th.foreground)
	}
	for _, y := range yMajor {
		py := v.py(y)
		fillRect(canvas, image.Rect(v.rect.Min.X-tickLength, py, v.rect.Min.X, py+1), th.frame)
		drawTextAligned(canvas, tickLabel(y, plotAx.kmY()), v.rect.Min.X-tickLength-2, py+lh/3, "right", th.foreground)
	}

	drawAxisText(canvas, v.rect, plotAx, th)

	for i := range cbars {
		ax := &cbars[i]
		m, ok := set.Map(ax.Map)
		if !ok {
			continue
		}
		x0 := area.Max.X + 12 + i*cbarSlot
		bar := image.Rect(x0, v.rect.Min.Y, x0+cbarWidth, v.rect.Max.Y)
		drawColorbar(canvas, bar, m, ax, th)
	}
	return canvas, nil
}

func drawAxisText(canvas *image.RGBA, r image.Rectangle, ax *Axis, th theme) {
	lh := textHeight()
	if ax.Title != "" {
		x := (r.Min.X + r.Max.X) / 2
		switch ax.TitleLoc {
		case "left":
			x = r.Min.X
		case "right":
			x = r.Max.X
		}
		drawTextAligned(canvas, ax.Title, x, r.Min.Y-8, ax.TitleLoc, th.foreground)
	}
	if ax.XLabel != "" {
		drawTextAligned(canvas, ax.XLabel, (r.Min.X+r.Max.X)/2, r.Max.Y+tickLength+2*lh+6, "center", th.foreground)
	}
	if ax.YLabel != "" && ax.Kind == AxisPlot {
		drawTextVertical(canvas, ax.YLabel, 4, (r.Min.Y+r.Max.Y)/2, th.foreground)
	}
}

func drawColorbar(canvas *image.RGBA, bar image.Rectangle, m *mapobject.MapObject, ax *Axis, th theme) {
	cm := colormapFor(m.Display.Cmap)
	for y := bar.Min.Y; y < bar.Max.Y; y++ {
		t := 1 - float64(y-bar.Min.Y)/float64(max(1, bar.Dy()-1))
		fillRect(canvas, image.Rect(bar.Min.X, y, bar.Max.X, y+1), cm.At(t))
	}
	strokeRect(canvas, bar, th.frame)

	vmin, vmax := m.Range()
	lh := textHeight()
	labelX := bar.Max.X + 4
	drawText(canvas, tickLabel(vmax, false), labelX, bar.Min.Y+lh-2, th.foreground)
	drawText(canvas, tickLabel(vmin, false), labelX, bar.Max.Y, th.foreground)
	if ax.YLabel != "" {
		drawTextVertical(canvas, ax.YLabel, labelX+7*textWidth("0"), (bar.Min.Y+bar.Max.Y)/2, th.foreground)
	}
	if ax.Title != "" {
		drawTextAligned(canvas, ax.Title, bar.Min.X, bar.Min.Y-8, "left", th.foreground)
	}
}

func drawCrosses(plot *image.RGBA, v view, c *Crosses, xMajor, xMinor, yMajor, yMinor []float64) error {
	col, err := ParseColor(c.Color)
	if err != nil {
		return err
	}
	col = withAlpha(col, c.Alpha)
	xs, ys := xMajor, yMajor
	if c.IncludeMinor {
		xs = append(append([]float64(nil), xMajor...), xMinor...)
		ys = append(append([]float64(nil), yMajor...), yMinor...)
	}
	half := max(1, int(math.Round(c.Size/2)))
	lw := max(1, int(math.Round(c.LineWidth)))
	for _, x := range xs {
		for _, y := range ys {
			px, py := v.px(x), v.py(y)
			fillRect(plot, image.Rect(px-half, py-lw/2, px+half+1, py-lw/2+lw), col)
			fillRect(plot, image.Rect(px-lw/2, py-half, px-lw/2+lw, py+half+1), col)
		}
	}
	return nil
}

// niceStep rounds span/target to 1, 2 or 5 times a power of ten.
func niceStep(span float64, target int) float64 {
	raw := span / float64(target)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch f := raw / mag; {
	case f < 1.5:
		return mag
	case f < 3:
		return 2 * mag
	case f < 7:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// ticks returns major ticks inside [lo, hi] and the minor ticks halfway
// between them.
func ticks(lo, hi float64, target int) (major, minor []float64) {
	if !(hi > lo) || math.IsInf(hi-lo, 0) {
		return nil, nil
	}
	step := niceStep(hi-lo, target)
	eps := step * 1e-9
	start := math.Ceil((lo-eps)/step) * step
	for i := 0; ; i++ {
		v := start + float64(i)*step
		if v > hi+eps {
			break
		}
		major = append(major, v)
	}
	for i := -1; i < len(major); i++ {
		var v float64
		if i < 0 {
			v = start - step/2
		} else {
			v = major[i] + step/2
		}
		if v >= lo-eps && v <= hi+eps {
			minor = append(minor, v)
		}
	}
	return major, minor
}

func tickLabel(v float64, km bool) string {
	if math.IsNaN(v) {
		return "nan"
	}
	if km {
		return strconv.FormatFloat(v/1000, 'f', 1, 64)
	}
	if math.Abs(v) < 1e-9 {
		v = 0
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// renderSurface draws the surface map from above, lit by its lighting
// state, with draped maps blended on top.
func renderSurface(fig *engine.Figure, set engine.LayerSet) (*image.RGBA, error) {
	f3 := fig.Fig3D()
	bg := rgb(0xffffff)
	if f3.Background != "" {
		var err error
		if bg, err = ParseColor(f3.Background); err != nil {
			return nil, err
		}
	}
	fg := rgb(0x000000)
	if luminance(bg) < 128 {
		fg = rgb(0xffffff)
	}

	surf := surfaceMap(set, f3.SurfaceMap)
	if surf == nil {
		return nil, fmt.Errorf("no map to draw as surface")
	}

	light := surf.Lighting.Clamped()
	exaggeration := surf.ZScale
	if f3.ZExaggeration != nil {
		exaggeration *= *f3.ZExaggeration
	}
	shade := processors.Hillshade(surf.Grid, light.Azimuth, light.Elevation, exaggeration)

	cm := colormapFor(surf.Display.Cmap)
	vmin, vmax := surf.Range()
	base := colorize(surf.Grid, cm, vmin, vmax, 1)
	for i, s := range shade.Data {
		if math.IsNaN(s) {
			continue
		}
		lum := light.Ambient + light.Diffuse*light.Intensity*s + light.Specular*math.Pow(s, light.SpecularPower)
		r, c := i/shade.Cols, i%shade.Cols
		px := base.RGBAAt(c, r)
		scale := func(v uint8) uint8 { return uint8(math.Min(255, float64(v)*lum)) }
		base.SetRGBA(c, r, color.RGBA{R: scale(px.R), G: scale(px.G), B: scale(px.B), A: px.A})
	}
	for _, m := range set.Maps {
		if m == surf || !m.Display.Draped {
			continue
		}
		lo, hi := m.Range()
		drape := colorize(m.Grid, colormapFor(m.Display.Cmap), lo, hi, m.Display.Alpha)
		draw.NearestNeighbor.Scale(base, base.Bounds(), drape, drape.Bounds(), draw.Over, nil)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, surfaceWidth, surfaceHeight))
	fillRect(canvas, canvas.Bounds(), bg)
	area := image.Rect(24, 24, surfaceWidth-24, surfaceHeight-24)
	showBar := f3.ShowScalarBar == nil || *f3.ShowScalarBar
	if showBar {
		area.Max.X -= cbarSlot
	}
	v := fitView(surf.Grid.Extent(), area)

	smooth := f3.SmoothShading
	if surf.SmoothShading != nil {
		smooth = surf.SmoothShading
	}
	var scaler draw.Scaler = draw.NearestNeighbor
	if smooth != nil && *smooth {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(canvas, v.rect, base, base.Bounds(), draw.Over, nil)

	if showBar {
		x0 := area.Max.X + 12
		bar := image.Rect(x0, v.rect.Min.Y, x0+cbarWidth, v.rect.Max.Y)
		ax := &Axis{Kind: AxisColorbar, Map: surf.Name, YLabel: surf.Display.Cbar}
		drawColorbar(canvas, bar, surf, ax, theme{background: bg, foreground: fg, frame: fg})
	}
	return canvas, nil
}

func luminance(c color.RGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}
