package config

import (
	"os"

	"github.com/pkg/errors"
)

const EnvKnowledgePath = "LEAFSCAN_KNOWLEDGE_PATH"

// KnowledgeConfig locates the disease knowledge table. An empty path selects
// the table compiled into the binary.
type KnowledgeConfig struct {
	Path string `toml:"path"`
}

// Finalize applies environment variable overrides and validation.
func (c *KnowledgeConfig) Finalize() error {
	if v := os.Getenv(EnvKnowledgePath); v != "" {
		c.Path = v
	}
	if c.Path == "" {
		return nil
	}
	if _, err := os.Stat(c.Path); err != nil {
		return errors.Wrap(err, "invalid path")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *KnowledgeConfig) Merge(overlay *KnowledgeConfig) {
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
}
