package shapes_test

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/propflow/propflow/core/field"
	"github.com/propflow/propflow/core/manager"
	"github.com/propflow/propflow/core/property"
	"github.com/propflow/propflow/example/shapes"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func loadedManager(t *testing.T) *manager.Manager {
	t.Helper()
	mm := manager.New(manager.Options{Logger: zerolog.Nop()})
	if err := shapes.LoadModules(mm); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	return mm
}

func TestRectangleDeclaration(t *testing.T) {
	mm := loadedManager(t)
	r, err := mm.At("Rectangle")
	if err != nil {
		t.Fatal(err)
	}

	d1, err := r.Inputs().At("Dimension 1")
	if err != nil {
		t.Fatal(err)
	}
	if d1.Description() != "The height of the rectangle" {
		t.Errorf("Dimension 1 description = %q", d1.Description())
	}
	d2, _ := r.Inputs().At("Dimension 2")
	if d2.Description() != "The width of the rectangle" {
		t.Errorf("Dimension 2 description = %q", d2.Description())
	}
	name, _ := r.Inputs().At("Name")
	if name.Description() != "The name of the rectangle" {
		t.Errorf("Name description = %q", name.Description())
	}

	area, _ := r.Results().At("Area")
	if area.Description() != "The area of the shape" {
		t.Errorf("Area description = %q", area.Description())
	}
	pic, _ := r.Results().At("Picture")
	if pic.Description() != "An ASCII picture of the rectangle" {
		t.Errorf("Picture description = %q", pic.Description())
	}

	if r.Submods().Size() != 0 {
		t.Errorf("Rectangle submodules = %d, want 0", r.Submods().Size())
	}

	cites, err := r.Citations()
	if err != nil || len(cites) != 1 || !strings.Contains(cites[0], "Euclid") {
		t.Errorf("Citations = %v, %v", cites, err)
	}
}

func TestRectangleRun(t *testing.T) {
	mm := loadedManager(t)
	if err := manager.SetInput(mm, "Rectangle", "Name", "Test"); err != nil {
		t.Fatalf("SetInput: %v", err)
	}

	res, err := mm.RunAs(context.Background(), shapes.Area, "Rectangle", 1.23, 4.56)
	if err != nil {
		t.Fatalf("RunAs: %v", err)
	}
	if !approx(res[0].(float64), 5.6088) {
		t.Errorf("Area = %v, want 5.6088", res[0])
	}

	want := strings.Join([]string{
		"Test :",
		"**********",
		"*        *",
		"*        *",
		"*        *",
		"**********",
	}, "\n")

	out, err := runRectangleDirect(t, mm, 1.23, 4.56)
	if err != nil {
		t.Fatal(err)
	}
	if out != want {
		t.Errorf("Picture =\n%s\nwant\n%s", out, want)
	}
}

// runRectangleDirect runs the Rectangle instance through Run rather
// than the Area contract so the Picture result is reachable.
func runRectangleDirect(t *testing.T, mm *manager.Manager, d1, d2 float64) (string, error) {
	t.Helper()
	inst, err := mm.At("Rectangle")
	if err != nil {
		return "", err
	}
	in := shapes.Area.Inputs()
	if err := property.WrapInputs(shapes.Area, in, d1, d2); err != nil {
		return "", err
	}
	out, err := inst.Run(context.Background(), in)
	if err != nil {
		return "", err
	}
	pic, err := out.At("Picture")
	if err != nil {
		return "", err
	}
	return field.Value[string](pic)
}

func TestPrismRunWithSubmodule(t *testing.T) {
	mm := loadedManager(t)

	dims := []float64{1.23, 4.56, 7.89}
	res, err := mm.RunAs(context.Background(), shapes.PrismVolume, "Prism", dims)
	if err != nil {
		t.Fatalf("RunAs: %v", err)
	}
	baseArea, volume := res[0].(float64), res[1].(float64)
	if !approx(baseArea, 5.6088) {
		t.Errorf("Base area = %v, want 5.6088", baseArea)
	}
	if !approx(volume, 44.253432) {
		t.Errorf("Volume = %v, want 44.253432", volume)
	}
}

func TestPrismProfileShowsSubmoduleTree(t *testing.T) {
	mm := loadedManager(t)
	dims := []float64{1.23, 4.56, 7.89}
	if _, err := mm.RunAs(context.Background(), shapes.PrismVolume, "Prism", dims); err != nil {
		t.Fatal(err)
	}

	inst, err := mm.At("Prism")
	if err != nil {
		t.Fatal(err)
	}
	info := inst.ProfileInfo()
	if !strings.Contains(info, "  area\n") {
		t.Errorf("profile lacks the area submodule entry:\n%s", info)
	}
	if trace := inst.LastTrace(); len(trace) != 1 || trace[0] != "area" {
		t.Errorf("LastTrace = %v, want [area]", trace)
	}
}

func TestPrismMemoization(t *testing.T) {
	mm := loadedManager(t)
	dims := []float64{1.23, 4.56, 7.89}

	if _, err := mm.RunAs(context.Background(), shapes.PrismVolume, "Prism", dims); err != nil {
		t.Fatal(err)
	}

	inst, err := mm.At("Prism")
	if err != nil {
		t.Fatal(err)
	}
	in := shapes.PrismVolume.Inputs()
	if err := property.WrapInputs(shapes.PrismVolume, in, dims); err != nil {
		t.Fatal(err)
	}
	if !inst.IsCached(in) {
		t.Error("Prism result not cached after run")
	}

	if err := inst.ResetCache(); err != nil {
		t.Fatal(err)
	}
	if inst.IsCached(in) {
		t.Error("IsCached true after ResetCache")
	}

	// Re-running recomputes and re-caches.
	inst.Unlock()
	if _, err := mm.RunAs(context.Background(), shapes.PrismVolume, "Prism", dims); err != nil {
		t.Fatal(err)
	}
	if !inst.IsCached(in) {
		t.Error("re-run did not repopulate the cache")
	}
}
