package config

import (
	"os"
	"strconv"

	"github.com/nvr-ai/leafscan/diagnosis"
	"github.com/nvr-ai/leafscan/images"
	"github.com/pkg/errors"
)

const (
	EnvUIDefaultConfidence = "LEAFSCAN_UI_DEFAULT_CONFIDENCE"
	EnvUIDrawBoxes         = "LEAFSCAN_UI_DRAW_BOXES"
	EnvUIMaxImageSide      = "LEAFSCAN_UI_MAX_IMAGE_SIDE"
	EnvUIMaxImagePixels    = "LEAFSCAN_UI_MAX_IMAGE_PIXELS"
)

// UIConfig holds the defaults offered to users. DefaultConfidence and
// DrawBoxes are pointers because zero and false are meaningful settings.
type UIConfig struct {
	DefaultConfidence *float32 `toml:"default_confidence"`
	DrawBoxes         *bool    `toml:"draw_boxes"`
	// MaxImageSide bounds uploads before detection; 0 keeps full size.
	MaxImageSide int `toml:"max_image_side"`
	// MaxImagePixels rejects uploads whose header declares more pixels;
	// a negative value disables the check.
	MaxImagePixels int `toml:"max_image_pixels"`
}

// Options returns the diagnosis options the upload form starts with.
func (c *UIConfig) Options() diagnosis.Options {
	opts := diagnosis.DefaultOptions()
	if c.DefaultConfidence != nil {
		opts.Threshold = *c.DefaultConfidence
	}
	if c.DrawBoxes != nil {
		opts.DrawBoxes = *c.DrawBoxes
	}
	return opts
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *UIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites set fields from overlay.
func (c *UIConfig) Merge(overlay *UIConfig) {
	if overlay.DefaultConfidence != nil {
		v := *overlay.DefaultConfidence
		c.DefaultConfidence = &v
	}
	if overlay.DrawBoxes != nil {
		v := *overlay.DrawBoxes
		c.DrawBoxes = &v
	}
	if overlay.MaxImageSide != 0 {
		c.MaxImageSide = overlay.MaxImageSide
	}
	if overlay.MaxImagePixels != 0 {
		c.MaxImagePixels = overlay.MaxImagePixels
	}
}

func (c *UIConfig) loadDefaults() {
	d := diagnosis.DefaultOptions()
	if c.DefaultConfidence == nil {
		c.DefaultConfidence = &d.Threshold
	}
	if c.DrawBoxes == nil {
		c.DrawBoxes = &d.DrawBoxes
	}
	if c.MaxImageSide == 0 {
		c.MaxImageSide = 4096
	}
	if c.MaxImagePixels == 0 {
		c.MaxImagePixels = images.DefaultMaxPixels
	}
}

func (c *UIConfig) loadEnv() {
	if v := os.Getenv(EnvUIDefaultConfidence); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			t := float32(f)
			c.DefaultConfidence = &t
		}
	}
	if v := os.Getenv(EnvUIDrawBoxes); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DrawBoxes = &b
		}
	}
	if v := os.Getenv(EnvUIMaxImageSide); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxImageSide = n
		}
	}
	if v := os.Getenv(EnvUIMaxImagePixels); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxImagePixels = n
		}
	}
}

func (c *UIConfig) validate() error {
	if !diagnosis.ValidThreshold(*c.DefaultConfidence) {
		return errors.Errorf("invalid default_confidence: %v", *c.DefaultConfidence)
	}
	if c.MaxImageSide < 0 {
		return errors.Errorf("invalid max_image_side: %d", c.MaxImageSide)
	}
	return nil
}
