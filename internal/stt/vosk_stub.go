//go:build !vosk

package stt

import (
	"fmt"

	"github.com/loqalabs/loqa-wayfinder/internal/config"
)

// VoskAvailable reports whether the binary was built with the vosk tag.
const VoskAvailable = false

// NewVoskEngine is a stub when built without the vosk tag, which needs
// libvosk at link time.
func NewVoskEngine(cfg config.STTConfig, _ int) (Engine, error) {
	return nil, fmt.Errorf("vosk support not compiled in (build with: go build -tags vosk); model %s not loaded", cfg.ModelPath)
}
