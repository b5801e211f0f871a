package cache

import (
	"testing"

	"github.com/propflow/propflow/core/anyvalue"
	"github.com/propflow/propflow/core/field"
)

func TestValueRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    anyvalue.Value
	}{
		{"int", anyvalue.New(42)},
		{"float64", anyvalue.New(3.25)},
		{"string", anyvalue.New("hello")},
		{"bool", anyvalue.New(true)},
		{"float slice", anyvalue.New([]float64{1.23, 4.56, 7.89})},
		{"empty", anyvalue.Value{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeValue(tt.v)
			if err != nil {
				t.Fatalf("EncodeValue: %v", err)
			}
			got, err := DecodeValue(raw)
			if err != nil {
				t.Fatalf("DecodeValue: %v", err)
			}
			if !got.Equals(tt.v) {
				t.Errorf("round trip = %v, want %v", got, tt.v)
			}
			if tt.v.HasValue() && got.Type() != tt.v.Type() {
				t.Errorf("round trip type = %v, want %v", got.Type(), tt.v.Type())
			}
		})
	}
}

func TestFieldMapRoundTrip(t *testing.T) {
	m := field.NewMap()
	field.SetType[float64](m.Insert("Area")).
		SetDescription("The area of the shape")
	if s, _ := m.At("Area"); s != nil {
		if err := field.Set(s, 5.6088); err != nil {
			t.Fatal(err)
		}
	}
	field.SetType[string](m.Insert("Picture")).MakeTransparent()
	if s, _ := m.At("Picture"); s != nil {
		if err := field.Set(s, "**\n**"); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := EncodeFieldMap(m)
	if err != nil {
		t.Fatalf("EncodeFieldMap: %v", err)
	}
	got, err := DecodeFieldMap(raw)
	if err != nil {
		t.Fatalf("DecodeFieldMap: %v", err)
	}

	keys := got.Keys()
	if len(keys) != 2 || keys[0] != "Area" || keys[1] != "Picture" {
		t.Fatalf("decoded keys = %v", keys)
	}
	area, _ := got.At("Area")
	if v, _ := field.Value[float64](area); v != 5.6088 {
		t.Errorf("Area = %v", v)
	}
	if area.Description() != "The area of the shape" {
		t.Errorf("description = %q", area.Description())
	}
	pic, _ := got.At("Picture")
	if !pic.IsTransparent() {
		t.Error("transparency flag lost")
	}
	if v, _ := field.Value[string](pic); v != "**\n**" {
		t.Errorf("Picture = %q", v)
	}
}
