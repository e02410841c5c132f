package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"masterd/internal/preview"
	"masterd/internal/variant"
	"masterd/pkg/types"
)

// Tag length budgets for rendition file names. Most filesystems cap path
// components at 255 bytes; staying well under leaves room for the stem
// and extension.
const (
	maxTagLen   = 64
	maxTotalLen = 160
)

// previewSeconds bounds the audition segment the engine renders.
const previewSeconds = 20

// previewBitrate keeps preview artifacts small and obviously disposable.
const previewBitrate = "96k"

// descriptorFromOptions maps the wire options onto the variant identity.
func descriptorFromOptions(o types.JobOptions) variant.Descriptor {
	d := variant.Descriptor{
		Voicing:    o.Voicing,
		Strength:   o.Strength,
		TargetLUFS: o.TargetLUFS,
		TruePeakDB: o.TruePeakDB,
		Width:      o.Width,
		BassMonoHz: o.BassMonoHz,
	}
	for _, f := range o.Formats {
		d.Formats = append(d.Formats, variant.Format{
			Ext:        f.Ext,
			Bitrate:    f.Bitrate,
			SampleRate: f.SampleRate,
			BitDepth:   f.BitDepth,
		})
	}
	return d
}

func buildTag(o types.JobOptions, baseName string) string {
	return variant.BuildTag(descriptorFromOptions(o), baseName, maxTagLen, maxTotalLen)
}

// engineArgs builds the full-run invocation of the mastering engine.
func engineArgs(inputPath, outDir, progressPath string, o types.JobOptions, tag string) []string {
	args := []string{
		"--input", inputPath,
		"--out-dir", outDir,
		"--progress-log", progressPath,
	}
	if o.Voicing != "" {
		args = append(args, "--voicing", o.Voicing)
	}
	if o.Strength != 0 {
		args = append(args, "--strength", strconv.Itoa(o.Strength))
	}
	if o.TargetLUFS != 0 {
		args = append(args, "--target-lufs", formatFloat(o.TargetLUFS))
	}
	if o.TruePeakDB != 0 {
		args = append(args, "--true-peak", formatFloat(o.TruePeakDB))
	}
	if o.Width != 0 {
		args = append(args, "--width", formatFloat(o.Width))
	}
	if o.BassMonoHz != 0 {
		args = append(args, "--bass-mono-hz", strconv.Itoa(o.BassMonoHz))
	}
	for _, f := range o.Formats {
		args = append(args, "--format", formatArg(f))
	}
	if tag != "" {
		args = append(args, "--tag", tag)
	}
	return args
}

// formatArg renders one output format as ext[:bitrate][:rN][:bM].
func formatArg(f types.FormatSpec) string {
	parts := []string{f.Ext}
	if f.Bitrate != "" {
		parts = append(parts, f.Bitrate)
	}
	if f.SampleRate != 0 {
		parts = append(parts, "r"+strconv.Itoa(f.SampleRate))
	}
	if f.BitDepth != 0 {
		parts = append(parts, "b"+strconv.Itoa(f.BitDepth))
	}
	return strings.Join(parts, ":")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// engineRenderer invokes the same engine in preview mode: a short,
// low-bitrate segment written straight to the scratch path.
type engineRenderer struct {
	r *Runner
}

func (er engineRenderer) Render(ctx context.Context, req preview.Request, outPath string) error {
	src, err := er.r.uploads.Resolve(req.Source)
	if err != nil {
		return err
	}
	args := []string{
		"--input", src,
		"--preview-out", outPath,
		"--max-seconds", strconv.Itoa(previewSeconds),
		"--bitrate", previewBitrate,
	}
	if req.Voicing != "" {
		args = append(args, "--voicing", req.Voicing)
	}
	if req.Strength != 0 {
		args = append(args, "--strength", strconv.Itoa(req.Strength))
	}
	if req.Width != 0 {
		args = append(args, "--width", formatFloat(req.Width))
	}
	cmd := exec.CommandContext(ctx, er.r.cfg.EngineBin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("preview render: %w", err)
		}
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("preview render: %s", msg)
	}
	return nil
}
