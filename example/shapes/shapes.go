// Package shapes is a small module library used to exercise the
// framework end to end: three property types for geometric properties
// (Area, Perimeter, PrismVolume) and modules computing Area and
// PrismVolume, one of which delegates to a submodule.
package shapes

import (
	"context"
	"fmt"
	"strings"

	"github.com/propflow/propflow/core/field"
	"github.com/propflow/propflow/core/manager"
	"github.com/propflow/propflow/core/module"
	"github.com/propflow/propflow/core/property"
)

// Area is the contract for modules that compute the area of a
// two-dimensional shape.
var Area = property.New("Area",
	func(m *field.Map) {
		field.SetType[float64](m.Insert("Dimension 1")).
			SetDescription("The length of the 1st dimension")
		field.SetType[float64](m.Insert("Dimension 2")).
			SetDescription("The length of the 2nd dimension")
	},
	func(m *field.Map) {
		field.SetType[float64](m.Insert("Area")).
			SetDescription("The area of the shape")
	},
)

// Perimeter is the contract for modules that compute the perimeter of
// a two-dimensional shape.
var Perimeter = property.New("Perimeter",
	func(m *field.Map) {
		field.SetType[float64](m.Insert("Dimension 1")).
			SetDescription("The length of the 1st dimension")
		field.SetType[float64](m.Insert("Dimension 2")).
			SetDescription("The length of the 2nd dimension")
	},
	func(m *field.Map) {
		field.SetType[float64](m.Insert("Perimeter")).
			SetDescription("The perimeter of the shape")
	},
)

// PrismVolume is the contract for modules that compute the volume of a
// prism from its dimensions.
var PrismVolume = property.New("PrismVolume",
	func(m *field.Map) {
		field.SetType[[]float64](m.Insert("Dimensions")).
			SetDescription("The length of each dimension")
	},
	func(m *field.Map) {
		field.SetType[float64](m.Insert("Base area")).
			SetDescription("The area of the base")
		field.SetType[float64](m.Insert("Volume")).
			SetDescription("The volume of the prism")
	},
)

// NewRectangle builds the module computing the area of a rectangle. In
// addition to the Area contract it takes a name for the rectangle and
// returns an ASCII picture of it.
func NewRectangle() *module.Base {
	b := module.NewBase("shapes.Rectangle")
	b.SatisfiesPropertyType(Area)
	b.Description("Computes the area of a rectangle")
	b.Citation("Euclid. The Elements. 300 BCE")

	module.AddInput[string](b, "Name").
		SetDescription("The name of the rectangle")
	if s, err := b.Inputs().At("Name"); err == nil {
		if err := field.Default(s, ""); err != nil {
			panic(err)
		}
	}
	module.AddResult[string](b, "Picture").
		SetDescription("An ASCII picture of the rectangle")

	if s, err := b.Inputs().At("Dimension 1"); err == nil {
		s.SetDescription("The height of the rectangle")
	}
	if s, err := b.Inputs().At("Dimension 2"); err == nil {
		s.SetDescription("The width of the rectangle")
	}

	b.RunWith(func(ctx context.Context, inputs *field.Map, call *module.Call) (*field.Map, error) {
		in, err := property.UnwrapInputs(Area, inputs)
		if err != nil {
			return nil, err
		}
		dim1, dim2 := in[0].(float64), in[1].(float64)

		nameSpec, err := inputs.At("Name")
		if err != nil {
			return nil, err
		}
		name, err := field.Value[string](nameSpec)
		if err != nil {
			return nil, err
		}

		area := dim1 * dim2

		// The picture captures only the relative sizes of the two
		// dimensions, not the scale.
		rows, cols := 10, 10
		if dim1 > dim2 {
			cols = 5
		} else if dim2 > dim1 {
			rows = 5
		}
		top := strings.Repeat("*", cols)
		space := strings.Repeat(" ", cols-2)
		var pic strings.Builder
		fmt.Fprintf(&pic, "%s :\n", name)
		pic.WriteString(top + "\n")
		for i := 0; i < rows-2; i++ {
			pic.WriteString("*" + space + "*\n")
		}
		pic.WriteString(top)

		out := b.Results().Clone()
		if err := property.WrapResults(Area, out, area); err != nil {
			return nil, err
		}
		picSpec, err := out.At("Picture")
		if err != nil {
			return nil, err
		}
		if err := field.Set(picSpec, pic.String()); err != nil {
			return nil, err
		}
		return out, nil
	})
	return b
}

// NewPrism builds the module computing a prism's volume. The area of
// the base is delegated to a submodule satisfying Area, which keeps
// the base-shape algorithm out of the volume algorithm.
func NewPrism() *module.Base {
	b := module.NewBase("shapes.Prism")
	b.SatisfiesPropertyType(PrismVolume)
	b.Description("Computes the volume of a prism")
	b.Citation("Euclid. The Elements. 300 BCE")

	if s, err := b.Inputs().At("Dimensions"); err == nil {
		s.SetDescription("1st 2 elements are for the base, last is height")
	}
	b.AddSubmodule(Area, "area").
		SetDescription("Submodule used to compute base's area")

	b.RunWith(func(ctx context.Context, inputs *field.Map, call *module.Call) (*field.Map, error) {
		in, err := property.UnwrapInputs(PrismVolume, inputs)
		if err != nil {
			return nil, err
		}
		dims := in[0].([]float64)
		if len(dims) < 3 {
			return nil, fmt.Errorf("need 3 dimensions, got %d", len(dims))
		}

		res, err := call.RunSubmodule(ctx, "area", Area, dims[0], dims[1])
		if err != nil {
			return nil, err
		}
		area := res[0].(float64)
		volume := area * dims[2]

		out := b.Results().Clone()
		if err := property.WrapResults(PrismVolume, out, area, volume); err != nil {
			return nil, err
		}
		return out, nil
	})
	return b
}

// LoadModules registers the library's modules with a manager and sets
// them as the defaults for the property types they introduce.
func LoadModules(mm *manager.Manager) error {
	if err := mm.AddModule("Rectangle", NewRectangle()); err != nil {
		return err
	}
	if err := mm.AddModule("Prism", NewPrism()); err != nil {
		return err
	}
	if err := mm.SetDefault(Area, nil, "Rectangle"); err != nil {
		return err
	}
	return mm.SetDefault(PrismVolume, nil, "Prism")
}
