// Package loaders turns data source parameters into grids.
//
// The built-in registry holds four loaders, each also reachable under the
// identifier older workflows used:
//
//	read_tif  (topotoolbox.read_tif)  path
//	load_dem  (topotoolbox.load_dem)  source: file path or sample DEM name
//	raster    (rasterio)              path, band=1, nodata
//	array     (numpy)                 path, key for .npz archives
//
// GeoTIFF decoding covers strip and tile layouts, LZW and deflate
// compression and both predictors. Sample DEMs are downloaded once into a
// local cache directory.
package loaders
