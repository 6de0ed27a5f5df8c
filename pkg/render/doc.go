// Package render provides the figure builders the engine hands built layer
// sets to.
//
// Two builders are available, selected by name through New:
//
//   - manifest: a YAML or JSON description of every figure (axes after the
//     fig2d actions, map display settings, ranges, statistics, derived
//     layers and 3D lighting). Useful headless and in tests.
//   - png: a raster preview. The flat figure is drawn with ticks, labels,
//     grid crosses and colorbars; the surface figure is a lit top-down view
//     of the surface map with draped maps blended on top.
//
// Output paths come from fig2d.save_path and fig3d.screenshot_path, falling
// back to DefaultFig2DPath and DefaultFig3DPath, relative to Options.OutDir.
// A fig2d action aimed at an axis the figure lacks fails with ErrAxisRange.
package render
