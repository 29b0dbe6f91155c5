package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// DefaultPreviewTags are tried largest first.
var DefaultPreviewTags = []string{"JpgFromRaw", "PreviewImage", "OtherImage"}

// decodeArgs: TIFF output, camera white balance, AHD demosaicing, highlights
// clipped rather than recovered.
var decodeArgs = []string{"-T", "-w", "-q", "3", "-H", "0"}

var decodedSuffixes = map[string]bool{".tiff": true, ".tif": true, ".ppm": true, ".pgm": true}

// NewRAWChain builds preview extraction, the darktable renderer, dcraw_emu and
// dcraw, in that order.
func NewRAWChain(tb *Toolbox, previewTags []string) *Chain {
	if len(previewTags) == 0 {
		previewTags = DefaultPreviewTags
	}
	return NewChain(RouteRAW, tb.Runner.LookPath, tb.MaxStderr, tb.Logger,
		&PreviewStrategy{tb: tb, Tags: previewTags},
		&RendererStrategy{tb: tb},
		&DecoderStrategy{tb: tb, Tool: "dcraw_emu"},
		&DecoderStrategy{tb: tb, Tool: "dcraw", Stdout: true},
	)
}

// PreviewStrategy extracts a camera-embedded JPEG with exiftool. A tag whose
// stream is empty or fails validation falls through to the next tag.
type PreviewStrategy struct {
	tb   *Toolbox
	Tags []string
}

func (p *PreviewStrategy) Name() string   { return "exiftool" }
func (p *PreviewStrategy) Binary() string { return "exiftool" }

func (p *PreviewStrategy) Attempt(ctx context.Context, job Job) error {
	var reasons []string
	var last *toolexec.Error

	for _, tag := range p.Tags {
		err := p.tryTag(ctx, job, tag)
		if err == nil {
			p.tb.Logger.Info().Str("step", "exiftool:"+tag).Str("status", "ok").Msg("preview extracted")
			return nil
		}

		var toolErr *toolexec.Error
		if errors.As(err, &toolErr) {
			last = toolErr
			reasons = append(reasons, fmt.Sprintf("%s: %s", tag, toolErr.Stderr))
		} else {
			reasons = append(reasons, fmt.Sprintf("%s: %s", tag, err))
		}
		p.tb.Logger.Debug().Str("step", "exiftool:"+tag).Str("status", "fail").Err(err).Msg("preview tag rejected")
	}

	se := &StageError{Strategy: p.Name(), Stderr: strings.Join(reasons, "; ")}
	if last != nil {
		if last.HasExitCode() {
			rc := last.ExitCode
			se.ExitCode = &rc
		}
		se.TimedOut = last.Kind == toolexec.KindTimeout
	}
	return se
}

func (p *PreviewStrategy) tryTag(ctx context.Context, job Job, tag string) error {
	stream, err := p.tb.Runner.Run(ctx, toolexec.Command{
		Name:    "exiftool",
		Args:    []string{"-b", "-" + tag, job.Input},
		Timeout: p.tb.Timeouts.Default,
	})
	if err != nil {
		return err
	}
	if len(stream) == 0 {
		return errors.New("empty preview stream")
	}

	preview := filepath.Join(job.Dir, "raw_preview_"+strings.ToLower(tag)+".jpg")
	if err := os.WriteFile(preview, stream, 0o600); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return p.tb.Finish(ctx, preview, job)
}

// RendererStrategy develops the RAW with darktable-cli using a fixed,
// hardware-independent configuration.
type RendererStrategy struct {
	tb *Toolbox
}

func (r *RendererStrategy) Name() string   { return "darktable-cli" }
func (r *RendererStrategy) Binary() string { return "darktable-cli" }

func (r *RendererStrategy) Attempt(ctx context.Context, job Job) error {
	rendered := filepath.Join(job.Dir, "raw_darktable.jpg")
	_, err := r.tb.Runner.Run(ctx, toolexec.Command{
		Name: "darktable-cli",
		Args: []string{
			job.Input,
			rendered,
			"--core",
			"--configdir", filepath.Join(job.Dir, "darktable"),
			"--conf", "plugins/imageio/format/jpeg/quality=95",
			"--conf", "plugins/imageio/format/jpeg/allow_upscale=false",
			"--conf", "opencl=false",
		},
		Timeout: r.tb.Timeouts.Renderer,
		Env:     map[string]string{"DARKTABLE_NUM_THREADS": "1"},
	})
	if err != nil {
		return err
	}
	return r.tb.Finish(ctx, rendered, job)
}

// DecoderStrategy demosaics with a dcraw-compatible decoder into a raster
// intermediate. With Stdout set the decoder writes to stdout and the file
// name is ours; otherwise the decoder names the file and it is discovered
// next to the input.
type DecoderStrategy struct {
	tb     *Toolbox
	Tool   string
	Stdout bool
}

func (d *DecoderStrategy) Name() string   { return d.Tool }
func (d *DecoderStrategy) Binary() string { return d.Tool }

func (d *DecoderStrategy) Attempt(ctx context.Context, job Job) error {
	cmd := toolexec.Command{Name: d.Tool, Timeout: d.tb.Timeouts.Decoder}

	var decoded string
	if d.Stdout {
		decoded = filepath.Join(job.Dir, stem(job.Input)+"."+d.Tool+".tiff")
		cmd.Args = append(append([]string{"-c"}, decodeArgs...), job.Input)
		cmd.StdoutPath = decoded
	} else {
		cmd.Args = append(append([]string{}, decodeArgs...), job.Input)
	}

	if _, err := d.tb.Runner.Run(ctx, cmd); err != nil {
		return err
	}

	if decoded == "" {
		found, err := FindDecoded(job.Input)
		if err != nil {
			return err
		}
		decoded = found
	}
	return d.tb.Finish(ctx, decoded, job)
}

// FindDecoded locates a decoder's output next to input: a raster file whose
// name starts with the input's stem. The most recently modified one wins.
func FindDecoded(input string) (string, error) {
	dir := filepath.Dir(input)
	prefix := stem(input)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read decode dir: %w", err)
	}

	var best string
	var bestMod int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !decodedSuffixes[strings.ToLower(filepath.Ext(name))] || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); best == "" || mod > bestMod {
			best, bestMod = filepath.Join(dir, name), mod
		}
	}

	if best == "" {
		return "", fmt.Errorf("decoded RAW output not found for %s", filepath.Base(input))
	}
	return best, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
