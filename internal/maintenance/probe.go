// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DurationProber recovers a media file's duration when its metadata
// record's duration field is zero or negative — the fallback
// step of spec §4.7's filter_by_duration duration-source preference.
type DurationProber interface {
	ProbeDuration(ctx context.Context, mediaPath string) (int, error)
}

// ffprobeProber shells out to an ffprobe-compatible binary and reads the
// container's format-level duration, grounded on the teacher's
// internal/infra/ffmpeg Probe function, pared down to the single field
// Maintenance needs.
type ffprobeProber struct {
	binPath string
}

// NewFFprobeProber constructs a DurationProber. binPath defaults to
// "ffprobe" on PATH when empty.
func NewFFprobeProber(binPath string) DurationProber {
	if binPath == "" {
		binPath = "ffprobe"
	}
	return &ffprobeProber{binPath: binPath}
}

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *ffprobeProber) ProbeDuration(ctx context.Context, mediaPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		mediaPath,
	}
	cmd := exec.CommandContext(ctx, p.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("maintenance: ffprobe failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	var data probeFormat
	if err := json.Unmarshal(out, &data); err != nil {
		return 0, fmt.Errorf("maintenance: decode ffprobe output: %w", err)
	}
	if data.Format.Duration == "" {
		return 0, fmt.Errorf("maintenance: ffprobe reported no duration for %s", mediaPath)
	}
	seconds, err := strconv.ParseFloat(data.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("maintenance: parse ffprobe duration: %w", err)
	}
	return int(seconds), nil
}
