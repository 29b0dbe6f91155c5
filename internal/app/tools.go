package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// toolGroups are satisfied when any one member is installed.
var toolGroups = [][]string{
	{"magick"},
	{"exiftool"},
	{"heif-convert"},
	{"dcraw_emu", "dcraw"},
	{"darktable-cli"},
}

// Inventory is what the host can run.
type Inventory struct {
	Missing    []string
	HEICCoders bool
}

// CheckTools looks up every external binary and asks ImageMagick whether it
// can read HEIC.
func CheckTools(ctx context.Context, runner toolexec.Runner) Inventory {
	var inv Inventory
	for _, group := range toolGroups {
		found := false
		for _, name := range group {
			if _, err := runner.LookPath(name); err == nil {
				found = true
				break
			}
		}
		if !found {
			inv.Missing = append(inv.Missing, strings.Join(group, "|"))
		}
	}

	out, err := runner.Run(ctx, toolexec.Command{
		Name:    "magick",
		Args:    []string{"-list", "format"},
		Timeout: 10 * time.Second,
	})
	if err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if f := strings.Fields(line); len(f) > 0 && strings.TrimRight(f[0], "*") == "HEIC" {
				inv.HEICCoders = true
				break
			}
		}
	}
	return inv
}

func LogToolInventory(ctx context.Context, runner toolexec.Runner, logger zerolog.Logger) {
	inv := CheckTools(ctx, runner)
	if len(inv.Missing) > 0 {
		logger.Warn().Strs("missing", inv.Missing).Msg("some conversion tools are not installed")
	}
	ev := logger.Info()
	if !inv.HEICCoders {
		ev = logger.Warn()
	}
	ev.Bool("heic_support", inv.HEICCoders).Msg("magick format check")
}
