// Package sink stores finished captures.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"

	"github.com/dudu/biokiosk/internal/capture"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata is the JSON sidecar written next to each capture
type Metadata struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Style     string `json:"style"`
	Masked    bool   `json:"masked"`
	Fallback  bool   `json:"fallback"`
	Bytes     int    `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// NewMetadata describes an artifact
func NewMetadata(a *capture.Artifact) Metadata {
	m := Metadata{
		ID:        a.ID().String(),
		Timestamp: a.CreatedAt().UTC().Format(time.RFC3339Nano),
		Style:     a.Style().String(),
		Masked:    a.Masked(),
		Fallback:  a.Fallback(),
		Bytes:     a.Size(),
	}
	if img := a.Image(); img != nil {
		m.Width, m.Height = img.Bounds().Dx(), img.Bounds().Dy()
	}
	return m
}

// BaseName is the file name stem of an artifact, bio-pass-<unix ms>
func BaseName(a *capture.Artifact) string {
	return fmt.Sprintf("bio-pass-%d", a.CreatedAt().UnixMilli())
}

// FileSink writes captures into a directory
type FileSink struct {
	dir       string
	thumbnail int
}

// NewFileSink creates dir if needed. A positive thumbnail also writes a
// preview scaled to fit a thumbnail x thumbnail box.
func NewFileSink(dir string, thumbnail int) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir, thumbnail: thumbnail}, nil
}

// Consume implements capture.Consumer
func (s *FileSink) Consume(ctx context.Context, a *capture.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := filepath.Join(s.dir, BaseName(a))

	if err := os.WriteFile(base+".png", a.PNG(), 0o644); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}

	meta, err := json.MarshalIndent(NewMetadata(a), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode capture metadata: %w", err)
	}
	if err := os.WriteFile(base+".json", meta, 0o644); err != nil {
		return fmt.Errorf("failed to write capture metadata: %w", err)
	}

	if s.thumbnail > 0 && a.Image() != nil {
		thumb := imaging.Fit(a.Image(), s.thumbnail, s.thumbnail, imaging.Lanczos)
		if err := imaging.Save(thumb, base+"-thumb.png"); err != nil {
			return fmt.Errorf("failed to write thumbnail: %w", err)
		}
	}
	return nil
}
