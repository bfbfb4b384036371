package inference

import (
	"errors"
	"math"
	"testing"
)

func TestBytesToFloat32(t *testing.T) {
	want := []float32{0, 1, -2.5, float32(math.Pi)}
	raw := make([]byte, 0, len(want)*4)
	for _, f := range want {
		b := math.Float32bits(f)
		raw = append(raw, byte(b), byte(b>>8), byte(b>>16), byte(b>>24))
	}

	got := BytesToFloat32(raw)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if n := len(BytesToFloat32([]byte{1, 2, 3})); n != 0 {
		t.Errorf("short input produced %d floats", n)
	}
}

func TestSessionRequiresInitialize(t *testing.T) {
	if Initialized() {
		t.Skip("runtime already initialized in this process")
	}
	if _, err := NewSession("model.onnx", []string{"in"}, []string{"out"}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("NewSession() error = %v, want ErrNotInitialized", err)
	}
	if _, err := Inspect("model.onnx"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Inspect() error = %v, want ErrNotInitialized", err)
	}
	if err := Shutdown(); err != nil {
		t.Errorf("Shutdown() before Initialize error = %v", err)
	}
}

func TestDefaultLibraryPath(t *testing.T) {
	if DefaultLibraryPath() == "" {
		t.Error("DefaultLibraryPath() is empty")
	}
}
