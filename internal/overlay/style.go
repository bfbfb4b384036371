package overlay

import (
	"fmt"
	"strings"
)

// Style selects the eyewear drawn over the face
type Style int

const (
	StyleNone Style = iota
	StyleCyber
	StyleClassic
	StyleAviator
	StyleRetro
	StyleMonocle
)

var styleNames = map[Style]string{
	StyleNone:    "NONE",
	StyleCyber:   "CYBER",
	StyleClassic: "CLASSIC",
	StyleAviator: "AVIATOR",
	StyleRetro:   "RETRO",
	StyleMonocle: "MONOCLE",
}

// Styles lists every drawable style in menu order
func Styles() []Style {
	return []Style{StyleCyber, StyleClassic, StyleAviator, StyleRetro, StyleMonocle}
}

func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Style(%d)", int(s))
}

// ParseStyle accepts a style name in any case
func ParseStyle(name string) (Style, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	if want == "" {
		return StyleNone, nil
	}
	for s, n := range styleNames {
		if n == want {
			return s, nil
		}
	}
	return StyleNone, fmt.Errorf("unknown overlay style %q", name)
}

// MarshalText implements encoding.TextMarshaler
func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Style) UnmarshalText(text []byte) error {
	parsed, err := ParseStyle(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
