package property

import (
	"errors"
	"testing"

	"github.com/propflow/propflow/core/errs"
	"github.com/propflow/propflow/core/field"
)

func areaType() *Type {
	return New("Area",
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
}

func TestDeclaredMaps(t *testing.T) {
	pt := areaType()

	in := pt.Inputs()
	if in.Size() != 2 {
		t.Fatalf("inputs size = %d, want 2", in.Size())
	}
	keys := in.Keys()
	if keys[0] != "Dimension 1" || keys[1] != "Dimension 2" {
		t.Errorf("input keys = %v", keys)
	}
	d1, _ := in.At("Dimension 1")
	if d1.Description() != "The length of the 1st dimension" {
		t.Errorf("description = %q", d1.Description())
	}

	out := pt.Results()
	if out.Size() != 1 {
		t.Fatalf("results size = %d, want 1", out.Size())
	}
}

func TestFreshMapsAreIndependent(t *testing.T) {
	pt := areaType()
	a := pt.Inputs()
	s, _ := a.At("Dimension 1")
	if err := field.Set(s, 1.0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := pt.Inputs()
	s2, _ := b.At("Dimension 1")
	if s2.HasValue() {
		t.Error("second Inputs() call returned a map with leftover state")
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	pt := areaType()
	m := pt.Inputs()
	if err := WrapInputs(pt, m, 1.23, 4.56); err != nil {
		t.Fatalf("WrapInputs: %v", err)
	}

	got, err := UnwrapInputs(pt, m)
	if err != nil {
		t.Fatalf("UnwrapInputs: %v", err)
	}
	if len(got) != 2 || got[0].(float64) != 1.23 || got[1].(float64) != 4.56 {
		t.Errorf("round trip = %v, want [1.23 4.56]", got)
	}
}

func TestWrapPositionalAssignment(t *testing.T) {
	pt := areaType()
	m := pt.Inputs()
	if err := WrapInputs(pt, m, 1.23, 4.56); err != nil {
		t.Fatalf("WrapInputs: %v", err)
	}
	d1, _ := m.At("Dimension 1")
	if got, _ := field.Value[float64](d1); got != 1.23 {
		t.Errorf("Dimension 1 = %v, want 1.23", got)
	}
	d2, _ := m.At("Dimension 2")
	if got, _ := field.Value[float64](d2); got != 4.56 {
		t.Errorf("Dimension 2 = %v, want 4.56", got)
	}
}

func TestWrapConvertsCompatibleNumerics(t *testing.T) {
	pt := areaType()
	m := pt.Inputs()
	// ints convert to the declared float64 the way an implicit
	// conversion would.
	if err := WrapInputs(pt, m, 2, 3); err != nil {
		t.Fatalf("WrapInputs with ints: %v", err)
	}
	got, err := UnwrapInputs(pt, m)
	if err != nil {
		t.Fatalf("UnwrapInputs: %v", err)
	}
	if got[0].(float64) != 2.0 {
		t.Errorf("converted value = %v", got[0])
	}
}

func TestWrapRejectsIncompatible(t *testing.T) {
	pt := areaType()
	m := pt.Inputs()
	err := WrapInputs(pt, m, "wide", 4.56)
	if !errors.Is(err, errs.ErrWrongType) {
		t.Errorf("WrapInputs(string) = %v, want ErrWrongType", err)
	}
}

func TestWrapTooManyArgs(t *testing.T) {
	pt := areaType()
	m := pt.Inputs()
	if err := WrapInputs(pt, m, 1.0, 2.0, 3.0); !errors.Is(err, errs.ErrWrongType) {
		t.Errorf("3 args into 2 fields = %v, want ErrWrongType", err)
	}
}

func TestEmptyPropertyType(t *testing.T) {
	pt := New("Nullary", nil, nil)
	if pt.Inputs().Size() != 0 || pt.Results().Size() != 0 {
		t.Fatal("nullary type has fields")
	}
	got, err := UnwrapInputs(pt, pt.Inputs())
	if err != nil {
		t.Fatalf("UnwrapInputs: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unwrap of empty type = %v, want empty", got)
	}
}

func TestDerivedTypeAppendsFields(t *testing.T) {
	base := areaType()
	derived := Derive("AreaWithUnits", base,
		func(m *field.Map) {
			field.SetType[string](m.Insert("Units")).
				SetDescription("Length units of the dimensions")
		},
		nil,
	)

	keys := derived.Inputs().Keys()
	want := []string{"Dimension 1", "Dimension 2", "Units"}
	if len(keys) != len(want) {
		t.Fatalf("derived keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if derived.Base() != base {
		t.Error("Base() lost")
	}

	// Positional wrap covers base fields first, then the extension.
	m := derived.Inputs()
	if err := WrapInputs(derived, m, 1.0, 2.0, "bohr"); err != nil {
		t.Fatalf("WrapInputs: %v", err)
	}
	u, _ := m.At("Units")
	if got, _ := field.Value[string](u); got != "bohr" {
		t.Errorf("Units = %q", got)
	}

	// The results side only has the base's field.
	if derived.Results().Size() != 1 {
		t.Errorf("derived results size = %d, want 1", derived.Results().Size())
	}
}

func TestUnwrapMissingValue(t *testing.T) {
	pt := areaType()
	m := pt.Inputs()
	if _, err := UnwrapInputs(pt, m); !errors.Is(err, errs.ErrNotReady) {
		t.Errorf("unwrap of unbound map = %v, want ErrNotReady", err)
	}
}
