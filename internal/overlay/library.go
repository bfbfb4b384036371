// Package overlay places and draws eyewear over a face from three
// landmarks: both outer eye corners and the nasal bridge.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/dudu/biokiosk/internal/landmark"
)

// Library maps each style to the renderer that draws it
type Library struct {
	renderers map[Style]Renderer
}

// NewLibrary returns a library with the builtin vector drawing for every style
func NewLibrary() *Library {
	l := &Library{renderers: make(map[Style]Renderer)}
	for s, p := range proceduralStyles() {
		l.renderers[s] = p
	}
	return l
}

// Set replaces the renderer for a style. Setting StyleNone is ignored.
func (l *Library) Set(s Style, r Renderer) {
	if s == StyleNone || r == nil {
		return
	}
	l.renderers[s] = r
}

// SetImage registers a raster asset for a style
func (l *Library) SetImage(s Style, img image.Image) {
	l.Set(s, NewRaster(img))
}

// Renderer returns the renderer for a style
func (l *Library) Renderer(s Style) (Renderer, bool) {
	r, ok := l.renderers[s]
	return r, ok
}

// LoadAssets looks for <dir>/<style>.png (lower case style name) for every
// style and replaces the vector drawing with each image found. It returns
// the styles that now use an image.
func (l *Library) LoadAssets(dir string) ([]Style, error) {
	if !dirExists(dir) {
		return nil, fmt.Errorf("overlay asset directory %s: %w", dir, fs.ErrNotExist)
	}

	var loaded []Style
	for _, s := range Styles() {
		path := filepath.Join(dir, strings.ToLower(s.String())+".png")
		img, err := imaging.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("failed to load overlay %s: %w", path, err)
		}
		l.SetImage(s, img)
		loaded = append(loaded, s)
	}
	return loaded, nil
}

// Draw places style on the canvas from crop-space landmarks.
// Nothing is drawn for StyleNone, for an unknown style or when any of the
// three anchor landmarks is missing. It reports whether anything was drawn.
func (l *Library) Draw(c Canvas, s Style, set *landmark.Set, w, h int) bool {
	if s == StyleNone {
		return false
	}
	r, ok := l.renderers[s]
	if !ok {
		return false
	}
	p, ok := Place(set, w, h)
	if !ok {
		return false
	}
	r.Draw(c, p)
	return true
}

// dirExists reports whether the asset directory is present
func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
