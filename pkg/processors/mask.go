package processors

import (
	"context"
	"fmt"
	"math"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

// maskWhere sets every cell matching pred to NaN.
func maskWhere(m *mapobject.MapObject, pred func(v float64) bool) {
	for i, v := range m.Grid.Data {
		if !math.IsNaN(v) && pred(v) {
			m.Grid.Data[i] = math.NaN()
		}
	}
}

func maskDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:        "nan_equal",
			Description: "Mask cells equal to target",
			Kind:        KindMutate,
			Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
				target, err := args.RequireFloat("target")
				if err != nil {
					return err
				}
				maskWhere(m, func(v float64) bool { return v == target })
				return nil
			},
		},
		{
			Name:        "nan_below",
			Description: "Mask cells at or below threshold",
			Kind:        KindMutate,
			Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
				threshold, err := args.Float("threshold", 0)
				if err != nil {
					return err
				}
				maskWhere(m, func(v float64) bool { return v <= threshold })
				return nil
			},
		},
		{
			Name:        "nan_above",
			Description: "Mask cells at or above threshold",
			Kind:        KindMutate,
			Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
				threshold, err := args.Float("threshold", 0)
				if err != nil {
					return err
				}
				maskWhere(m, func(v float64) bool { return v >= threshold })
				return nil
			},
		},
		{
			Name:        "nan_range",
			Description: "Mask cells inside [min, max]",
			Kind:        KindMutate,
			Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
				lo, err := args.RequireFloat("min")
				if err != nil {
					return err
				}
				hi, err := args.RequireFloat("max")
				if err != nil {
					return err
				}
				if lo > hi {
					return fmt.Errorf("min %v exceeds max %v", lo, hi)
				}
				maskWhere(m, func(v float64) bool { return v >= lo && v <= hi })
				return nil
			},
		},
	}
}
