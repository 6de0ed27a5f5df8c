package loaders

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/topoviz/topoviz/pkg/grid"
)

// jsonArray is the object form of a JSON array file.
type jsonArray struct {
	Data      [][]*float64    `json:"data"`
	Transform *grid.Transform `json:"transform,omitempty"`
	NoData    *float64        `json:"nodata,omitempty"`
}

// decodeJSONArray reads either a bare nested array or an object with data,
// optional transform and optional nodata. null cells become NaN.
func decodeJSONArray(data []byte) (*grid.Grid, error) {
	var doc jsonArray
	if err := json.Unmarshal(data, &doc.Data); err != nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
	}
	rows := make([][]float64, len(doc.Data))
	for r, row := range doc.Data {
		rows[r] = make([]float64, len(row))
		for c, v := range row {
			if v == nil {
				rows[r][c] = math.NaN()
				continue
			}
			rows[r][c] = *v
		}
	}
	g, err := grid.FromRows(rows)
	if err != nil {
		return nil, err
	}
	g.Transform = doc.Transform
	if doc.NoData != nil {
		maskValue(g, *doc.NoData)
	}
	return g, nil
}
