package spec

// ExampleYAML is the scaffold written by "topoviz init".
const ExampleYAML = `version: 1
interactive: true

inputs:
  dem_path:
    type: path
    prompt: Path to the DEM GeoTIFF
  sea_level:
    type: float
    default: 0.0
    prompt: Elevation at or below which cells are masked
  sigma:
    type: float
    default: 1.5
    required: false

data_sources:
  dem:
    loader: read_tif
    params:
      path: {$ref: dem_path}

maps:
  - name: elevation
    data: dem
    cmap: terrain
    cbar: Elevation [m]
    processors:
      - name: nan_below
        params:
          threshold: {$ref: sea_level}
      - name: smooth_multishade
        params:
          sigma: {$ref: sigma}
          alpha: 0.45
      - name: double_scale
      - name: dramatic_lighting

fig2d:
  figsize: [8, 6]
  save_path: quickmap2d.png
  actions:
    - type: title
      axis: 0
      text: Elevation
    - type: convert_ticks_to_km
      axis: 0

fig3d:
  background: white
  screenshot_path: quickmap3d.png

run:
  mode: both
`
