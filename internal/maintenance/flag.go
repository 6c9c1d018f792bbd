// Package maintenance implements the HA maintenance-mode sentinel file
// (spec §3.7): a single file on the shared volume whose presence disables
// automatic failover routing in client utilities without disabling direct
// inter-service calls. Write-rare, read-frequent, and treated as
// filesystem-atomic (touch/rm) per spec rather than routed through
// internal/store, matching the spec's own description of this one piece
// of state as a plain sentinel file instead of a structured entity.
package maintenance

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Flag checks and toggles the ha_maintenance sentinel under a shared
// volume root (spec §6.4: "/shared/ha_maintenance").
type Flag struct {
	path string
}

// New builds a Flag rooted at sharedRoot/ha_maintenance.
func New(sharedRoot string) *Flag {
	return &Flag{path: filepath.Join(sharedRoot, "ha_maintenance")}
}

// On reports whether the maintenance sentinel is currently present.
func (f *Flag) On() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Set creates or removes the sentinel file. Creating writes a single
// "entered: <RFC3339 time>" line into it; removing tolerates the file
// already being absent.
func (f *Flag) Set(on bool) error {
	if on {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return fmt.Errorf("maintenance: mkdir shared root: %w", err)
		}
		file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("maintenance: touch sentinel: %w", err)
		}
		fmt.Fprintf(file, "entered: %s\n", time.Now().UTC().Format(time.RFC3339))
		if err := file.Close(); err != nil {
			return fmt.Errorf("maintenance: close sentinel: %w", err)
		}
		log.Info().Str("path", f.path).Msg("maintenance: mode enabled")
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("maintenance: remove sentinel: %w", err)
	}
	log.Info().Str("path", f.path).Msg("maintenance: mode disabled")
	return nil
}
