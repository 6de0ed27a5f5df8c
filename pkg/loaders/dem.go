package loaders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDEMBaseURL hosts the TopoToolbox example DEMs as GeoTIFFs.
const DefaultDEMBaseURL = "https://raw.githubusercontent.com/TopoToolbox/DEMs/master"

// SampleDEMs are the named DEMs load_dem can fetch.
var SampleDEMs = []string{
	"bigtujunga", "kedarnath", "kunashiri", "perfectworld", "taalvolcano", "taiwan", "tibet",
}

// DEMStore resolves named sample DEMs to local files, downloading them into
// Dir on first use.
type DEMStore struct {
	Dir     string
	BaseURL string
	Client  *http.Client
}

// NewDEMStore creates a store caching into dir.
func NewDEMStore(dir string) *DEMStore {
	return &DEMStore{
		Dir:     dir,
		BaseURL: DefaultDEMBaseURL,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// IsSample reports whether name is a known sample DEM.
func IsSample(name string) bool {
	i := sort.SearchStrings(SampleDEMs, name)
	return i < len(SampleDEMs) && SampleDEMs[i] == name
}

// Path returns the local path for a sample DEM, downloading it if needed.
func (s *DEMStore) Path(ctx context.Context, name string) (string, error) {
	if !IsSample(name) {
		return "", fmt.Errorf("unknown sample DEM %q (known: %v)", name, SampleDEMs)
	}
	local := filepath.Join(s.Dir, name+".tif")
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create DEM cache %s: %w", s.Dir, err)
	}

	url := fmt.Sprintf("%s/%s.tif", s.BaseURL, name)
	log.Info().Str("dem", name).Str("url", url).Msg("Downloading sample DEM")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: %s", name, resp.Status)
	}

	tmp, err := os.CreateTemp(s.Dir, name+"-*.part")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", err
	}
	return local, nil
}
