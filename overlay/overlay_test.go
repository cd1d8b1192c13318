package overlay

import "testing"

func TestSolidRectSkippedWhenTransparent(t *testing.T) {
	d := NewDrawingContext()
	d.Current.Color[3] = 0
	d.SolidRect([4]float32{0, 0, 10, 10})
	if len(d.Scene) != 0 {
		t.Fatalf("SolidRect() with alpha=0 drew %d shapes, want 0", len(d.Scene))
	}
}

func TestSolidRectDrawsWhenOpaque(t *testing.T) {
	d := NewDrawingContext()
	d.SolidRect([4]float32{0, 0, 10, 10})
	if len(d.Scene) != 1 {
		t.Fatalf("SolidRect() drew %d shapes, want 1", len(d.Scene))
	}
}

func TestClearResetsSceneAndPen(t *testing.T) {
	d := NewDrawingContext()
	d.Current.Color = [4]float32{0, 0, 0, 0}
	d.SolidRect([4]float32{0, 0, 1, 1})
	d.Clear()
	if len(d.Scene) != 0 {
		t.Fatalf("Clear() left %d shapes in scene, want 0", len(d.Scene))
	}
	if d.Current.Color[3] != 1 {
		t.Fatalf("Clear() left pen alpha = %v, want the default 1", d.Current.Color[3])
	}
}
