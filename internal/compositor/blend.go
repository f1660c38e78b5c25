package compositor

import (
	"fmt"
	"strings"

	"github.com/gogpu/gg"
)

// BlendMode selects how overlay pixels combine with the scene beneath them.
type BlendMode string

const (
	BlendNormal   BlendMode = "normal"
	BlendScreen   BlendMode = "screen"
	BlendMultiply BlendMode = "multiply"
	BlendOverlay  BlendMode = "overlay"
)

// DefaultBlendMode brightens the scene with the overlay rather than replacing it.
const DefaultBlendMode = BlendScreen

// ParseBlendMode normalizes a configured blend name. Empty input yields the default.
func ParseBlendMode(value string) (BlendMode, error) {
	switch mode := BlendMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return DefaultBlendMode, nil
	case BlendNormal, BlendScreen, BlendMultiply, BlendOverlay:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported blend mode %q", value)
	}
}

func (m BlendMode) ggMode() gg.BlendMode {
	switch m {
	case BlendNormal:
		return gg.BlendNormal
	case BlendMultiply:
		return gg.BlendMultiply
	case BlendOverlay:
		return gg.BlendOverlay
	default:
		return gg.BlendScreen
	}
}
