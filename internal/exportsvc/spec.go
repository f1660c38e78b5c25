package exportsvc

import (
	"fmt"
	"strings"
	"time"

	"cardcast/internal/capture"
	"cardcast/internal/compositor"
	"cardcast/internal/config"
	"cardcast/internal/encoding"
	"cardcast/internal/services"
)

// Spec describes one export. Zero values take the configured defaults.
type Spec struct {
	Title           string  `json:"title"`
	Scene           string  `json:"scene"`
	Overlay         string  `json:"overlay,omitempty"`
	Soundtrack      string  `json:"soundtrack,omitempty"`
	Blend           string  `json:"blend,omitempty"`
	Container       string  `json:"container,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	FPS             int     `json:"fps,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
}

type resolvedSpec struct {
	Spec
	blend    compositor.BlendMode
	duration time.Duration
}

func (s Spec) resolve(cfg *config.Config) (resolvedSpec, error) {
	s.Title = strings.TrimSpace(s.Title)
	s.Scene = strings.TrimSpace(s.Scene)
	s.Overlay = strings.TrimSpace(s.Overlay)
	s.Soundtrack = strings.TrimSpace(s.Soundtrack)
	if s.Scene == "" {
		return resolvedSpec{}, services.Wrap(services.ErrValidation, "exportsvc", "spec", "scene is required", nil)
	}
	if s.Blend == "" {
		s.Blend = cfg.Recording.BlendMode
	}
	blend, err := compositor.ParseBlendMode(s.Blend)
	if err != nil {
		return resolvedSpec{}, services.Wrap(services.ErrValidation, "exportsvc", "spec", "", err)
	}
	s.Container = strings.ToLower(strings.TrimSpace(s.Container))
	if s.Container == "" {
		s.Container = cfg.Recording.Container
	}
	if s.Container != encoding.ContainerWebM && s.Container != encoding.ContainerMP4 {
		return resolvedSpec{}, services.Wrap(services.ErrValidation, "exportsvc", "spec",
			fmt.Sprintf("container must be webm or mp4, got %q", s.Container), nil)
	}
	if s.DurationSeconds == 0 {
		s.DurationSeconds = cfg.Recording.DurationSeconds
	}
	if s.FPS == 0 {
		s.FPS = cfg.Recording.FPS
	}
	if s.Width == 0 {
		s.Width = cfg.Recording.Width
	}
	if s.Height == 0 {
		s.Height = cfg.Recording.Height
	}
	if !(s.DurationSeconds > 0) || s.DurationSeconds > capture.MaxDuration.Seconds() {
		return resolvedSpec{}, services.Wrap(services.ErrValidation, "exportsvc", "spec",
			fmt.Sprintf("duration_seconds must be between 0 and %.0f, got %g", capture.MaxDuration.Seconds(), s.DurationSeconds), nil)
	}
	duration := time.Duration(s.DurationSeconds * float64(time.Second))
	if err := capture.CheckLimits(s.Width, s.Height, s.FPS, duration); err != nil {
		return resolvedSpec{}, err
	}
	return resolvedSpec{
		Spec:     s,
		blend:    blend,
		duration: duration,
	}, nil
}
