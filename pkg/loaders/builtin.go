package loaders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
)

// Options configure the built-in loaders.
type Options struct {
	// DEMStore resolves named sample DEMs for load_dem.
	DEMStore *DEMStore
}

// DefaultOptions caches sample DEMs under the user cache directory.
func DefaultOptions() Options {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return Options{DEMStore: NewDEMStore(filepath.Join(dir, "topoviz", "dems"))}
}

// Builtin returns the process-wide registry built with DefaultOptions.
var Builtin = sync.OnceValue(func() *Registry {
	return NewBuiltin(DefaultOptions())
})

// NewBuiltin builds a registry holding the built-in loaders.
func NewBuiltin(opts Options) *Registry {
	if opts.DEMStore == nil {
		opts.DEMStore = DefaultOptions().DEMStore
	}
	r, err := NewRegistry(
		Descriptor{
			Name:        "read_tif",
			Aliases:     []string{"topotoolbox.read_tif"},
			Description: "Read the first band of a GeoTIFF (path)",
			PathParam:   "path",
			Load:        readTIF,
		},
		Descriptor{
			Name:        "load_dem",
			Aliases:     []string{"topotoolbox.load_dem"},
			Description: "Load a named sample DEM or a GeoTIFF path (source)",
			PathParam:   "source",
			Load:        loadDEM(opts.DEMStore),
		},
		Descriptor{
			Name:        "raster",
			Aliases:     []string{"rasterio"},
			Description: "Read one band of a raster file (path, band=1, nodata)",
			PathParam:   "path",
			Load:        readRaster,
		},
		Descriptor{
			Name:        "array",
			Aliases:     []string{"numpy"},
			Description: "Read a .npy, .npz or .json array (path, key)",
			PathParam:   "path",
			Load:        readArray,
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func readFile(args inputs.Args, key string) ([]byte, string, error) {
	p, err := args.RequireString(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, p, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, p, nil
}

func readTIF(_ context.Context, args inputs.Args) (*grid.Grid, error) {
	data, p, err := readFile(args, "path")
	if err != nil {
		return nil, err
	}
	g, err := readGeoTIFF(data, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return g, nil
}

func readRaster(_ context.Context, args inputs.Args) (*grid.Grid, error) {
	band, err := args.Int("band", 1)
	if err != nil {
		return nil, err
	}
	data, p, err := readFile(args, "path")
	if err != nil {
		return nil, err
	}
	g, err := readGeoTIFF(data, band)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if args.Has("nodata") {
		nodata, err := args.Float("nodata", 0)
		if err != nil {
			return nil, err
		}
		maskValue(g, nodata)
	}
	return g, nil
}

func loadDEM(store *DEMStore) LoadFunc {
	return func(ctx context.Context, args inputs.Args) (*grid.Grid, error) {
		source, err := args.RequireString("source")
		if err != nil {
			return nil, err
		}
		p := source
		if _, statErr := os.Stat(source); statErr != nil {
			if !IsSample(source) {
				return nil, fmt.Errorf("source %q is neither a file nor a sample DEM", source)
			}
			if p, err = store.Path(ctx, source); err != nil {
				return nil, err
			}
		}
		return readTIF(ctx, inputs.Args{"path": p})
	}
}

func readArray(_ context.Context, args inputs.Args) (*grid.Grid, error) {
	key, err := args.String("key", "")
	if err != nil {
		return nil, err
	}
	data, p, err := readFile(args, "path")
	if err != nil {
		return nil, err
	}
	var g *grid.Grid
	switch strings.ToLower(filepath.Ext(p)) {
	case ".npy":
		g, err = decodeNPY(data)
	case ".npz":
		g, err = decodeNPZ(data, key)
	case ".json":
		g, err = decodeJSONArray(data)
	default:
		return nil, fmt.Errorf("%s: unsupported array format, want .npy, .npz or .json", p)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return g, nil
}
