package ui

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogRingKeepsNewest(t *testing.T) {
	r := NewLogRing(3)
	for i := 0; i < 5; i++ {
		r.Fire(&logrus.Entry{Level: logrus.InfoLevel, Message: fmt.Sprintf("line %d", i)})
	}

	got := r.Lines()
	if len(got) != 3 {
		t.Fatalf("Lines() = %v, want 3 lines", got)
	}
	for i, want := range []string{"line 2", "line 3", "line 4"} {
		if !strings.HasSuffix(got[i], want) {
			t.Errorf("line %d = %q, want suffix %q", i, got[i], want)
		}
	}
}

func TestLogRingStage(t *testing.T) {
	r := NewLogRing(0)
	r.Fire(&logrus.Entry{
		Level:   logrus.WarnLevel,
		Message: "[pipeline.Load] stage",
		Data:    logrus.Fields{"stage": "REQUESTING_CAMERA"},
	})

	got := r.Lines()
	if len(got) != 1 || got[0] != "WARN [pipeline.Load] stage REQUESTING_CAMERA" {
		t.Errorf("Lines() = %q", got)
	}
}

func TestLogRingLinesIsCopy(t *testing.T) {
	r := NewLogRing(2)
	r.Fire(&logrus.Entry{Level: logrus.InfoLevel, Message: "a"})
	lines := r.Lines()
	lines[0] = "changed"
	if r.Lines()[0] == "changed" {
		t.Error("Lines() exposes internal storage")
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		hud  HUD
		want string
	}{
		{HUD{}, "STYLE NONE  SEG LOADING"},
		{HUD{Style: "CYBER", Segmentation: "ACTIVE"}, "STYLE CYBER  SEG ACTIVE"},
		{HUD{Style: "RETRO", Segmentation: "OFFLINE", Countdown: 3}, "STYLE RETRO  SEG OFFLINE"},
	}
	for _, tt := range tests {
		if got := statusLine(tt.hud); got != tt.want {
			t.Errorf("statusLine(%+v) = %q, want %q", tt.hud, got, tt.want)
		}
	}
}

func TestHUDLines(t *testing.T) {
	got := hudLines(HUD{Style: "CYBER", Segmentation: "ACTIVE"})
	if len(got) != 1 {
		t.Errorf("hudLines() without timing = %q, want the status line only", got)
	}

	timing := "D: 12ms S:  0ms R:  3ms T: 20ms (50.0 FPS)"
	got = hudLines(HUD{Style: "CYBER", Segmentation: "ACTIVE", Timing: timing})
	if len(got) != 2 || got[0] != "STYLE CYBER  SEG ACTIVE" || got[1] != timing {
		t.Errorf("hudLines() = %q, want status then timing", got)
	}
}

func TestClamp(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.4: 0.4, 2: 1} {
		if got := clamp(in); got != want {
			t.Errorf("clamp(%v) = %v, want %v", in, got, want)
		}
	}
}
