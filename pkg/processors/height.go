package processors

import (
	"context"
	"fmt"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

func scaleBy(name string, fixed float64) Descriptor {
	return Descriptor{
		Name:          name,
		Description:   fmt.Sprintf("Multiply 3D height scale by %g", fixed),
		Applicability: Only3D,
		Kind:          KindState,
		Apply: func(_ context.Context, m *mapobject.MapObject, _ inputs.Args) error {
			m.ZScale *= fixed
			return nil
		},
	}
}

func heightDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:          "scale",
			Description:   "Multiply 3D height scale by factor",
			Applicability: Only3D,
			Kind:          KindState,
			Apply: func(_ context.Context, m *mapobject.MapObject, args inputs.Args) error {
				factor, err := args.RequireFloat("factor")
				if err != nil {
					return err
				}
				if factor <= 0 {
					return fmt.Errorf("factor must be positive, got %v", factor)
				}
				m.ZScale *= factor
				return nil
			},
		},
		scaleBy("double_scale", 2),
		scaleBy("halve_scale", 0.5),
		scaleBy("tenfold", 10),
		scaleBy("tenthfold", 0.1),
	}
}
