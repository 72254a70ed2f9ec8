// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package muxer invokes the external FFmpeg-compatible tool that
// produces a single muxed media file from separately downloaded video
// and audio streams.
package muxer

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/kaelmedia/vidharvest/internal/log"
	"github.com/kaelmedia/vidharvest/internal/model"
	"github.com/kaelmedia/vidharvest/internal/procgroup"
)

const stderrTailLines = 40

// Muxer invokes an FFmpeg-compatible binary with copy codecs, per
// spec §6's external-tool contract.
type Muxer struct {
	binPath     string
	killGrace   time.Duration
}

// New constructs a Muxer. binPath defaults to "ffmpeg" when empty.
func New(binPath string, killGrace time.Duration) *Muxer {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &Muxer{binPath: binPath, killGrace: killGrace}
}

// Mux runs `<tool> -i <videoPath> -i <audioPath> -c copy <outPath>` to
// completion. On a non-zero exit it returns a *model.MergeError carrying
// the tool name, exit code, and a bounded stderr tail; the caller is
// responsible for retaining the .part inputs per spec §4.5 step 5.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outPath string) error {
	args := []string{"-i", videoPath, "-i", audioPath, "-c", "copy", outPath}
	cmd := exec.CommandContext(ctx, m.binPath, args...)
	procgroup.Set(cmd)

	ring := NewLineRing(stderrTailLines)
	cmd.Stderr = ring
	cmd.Stdout = ring

	if err := cmd.Start(); err != nil {
		return &model.MergeError{Tool: m.binPath, ExitCode: -1, StderrTail: err.Error()}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		return m.classify(err, ring)
	case <-ctx.Done():
		log.L().Warn().Str("tool", m.binPath).Msg("muxer cancelled, terminating process group")
		err := procgroup.Terminate(cmd, waitCh, m.killGrace)
		return m.classify(err, ring)
	}
}

func (m *Muxer) classify(err error, ring *LineRing) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &model.MergeError{
			Tool:       m.binPath,
			ExitCode:   exitErr.ExitCode(),
			StderrTail: ring.String(stderrTailLines),
		}
	}
	return &model.MergeError{Tool: m.binPath, ExitCode: -1, StderrTail: ring.String(stderrTailLines)}
}
