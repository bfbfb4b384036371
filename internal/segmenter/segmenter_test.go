package segmenter

import (
	"bytes"
	"testing"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float32
		classes int
		class   int
		want    []byte
	}{
		{
			name:    "Single probability channel",
			scores:  []float32{0.1, 0.51, 0.5, 0.99},
			classes: 1,
			class:   0,
			want:    []byte{0, 1, 0, 1},
		},
		{
			name:    "Two logits, hair is class 1",
			scores:  []float32{2, -2, -1, 3, 0, 0, 0.1, 0.2},
			classes: 2,
			class:   1,
			want:    []byte{0, 1, 0, 1},
		},
		{
			name:    "Two logits, background is class 0",
			scores:  []float32{2, -2, -1, 3, 0, 0, 0.1, 0.2},
			classes: 2,
			class:   0,
			want:    []byte{1, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Categorize(tt.scores, 2, 2, tt.classes, tt.class, 0.5)
			if err != nil {
				t.Fatalf("Categorize() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorizeRejectsBadShapes(t *testing.T) {
	if _, err := Categorize([]float32{1, 2}, 2, 2, 1, 0, 0.5); err == nil {
		t.Error("accepted too few scores")
	}
	if _, err := Categorize(make([]float32, 8), 2, 2, 2, 2, 0.5); err == nil {
		t.Error("accepted an out of range class")
	}
}

func TestConfigs(t *testing.T) {
	body, hair := BodyConfig("body.onnx"), HairConfig("hair.onnx")
	if body.Name != "body" || body.Channels != 3 {
		t.Errorf("unexpected body config %+v", body)
	}
	if hair.Name != "hair" || hair.Channels != 4 || hair.Class != 1 {
		t.Errorf("unexpected hair config %+v", hair)
	}
	if _, err := New(Config{Name: "bad", Channels: 3}); err == nil {
		t.Error("New() accepted a zero input size")
	}
}
