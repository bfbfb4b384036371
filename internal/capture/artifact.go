package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/dudu/biokiosk/internal/overlay"
	"github.com/dudu/biokiosk/internal/pipeline"
)

// Artifact is a finished capture. It is never modified after creation.
type Artifact struct {
	id        uuid.UUID
	png       []byte
	img       image.Image
	createdAt time.Time
	style     overlay.Style
	masked    bool
	fallback  bool
}

// Consumer receives the artifact once the countdown has fired
type Consumer interface {
	Consume(ctx context.Context, a *Artifact) error
}

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc func(ctx context.Context, a *Artifact) error

func (f ConsumerFunc) Consume(ctx context.Context, a *Artifact) error {
	return f(ctx, a)
}

// NewArtifact wraps a composited result. fallback marks a live-canvas
// snapshot taken because the real capture failed.
func NewArtifact(res *pipeline.Result, fallback bool, now time.Time) (*Artifact, error) {
	if res == nil || len(res.PNG) == 0 {
		return nil, errors.New("empty capture result")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate artifact id: %w", err)
	}

	png := make([]byte, len(res.PNG))
	copy(png, res.PNG)

	return &Artifact{
		id:        id,
		png:       png,
		img:       res.Image,
		createdAt: now,
		style:     res.Style,
		masked:    res.Masked,
		fallback:  fallback,
	}, nil
}

func (a *Artifact) ID() uuid.UUID { return a.id }

// PNG returns a copy of the encoded image
func (a *Artifact) PNG() []byte {
	cp := make([]byte, len(a.png))
	copy(cp, a.png)
	return cp
}

// Size returns the encoded length in bytes
func (a *Artifact) Size() int { return len(a.png) }

// Image returns the decoded image. Callers must not draw into it.
func (a *Artifact) Image() image.Image { return a.img }

func (a *Artifact) CreatedAt() time.Time { return a.createdAt }

func (a *Artifact) Style() overlay.Style { return a.style }

// Masked reports whether the background was removed
func (a *Artifact) Masked() bool { return a.masked }

// Fallback reports whether this is the live preview rather than a capture
func (a *Artifact) Fallback() bool { return a.fallback }
