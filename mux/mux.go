// Package mux hands completed downloads to an external muxing tool.
package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/bilifetch/bilifetch"
)

type Muxer struct {
	// Path is the muxer executable, resolved on the search path.
	Path string

	log *zap.SugaredLogger
}

func New(path string) *Muxer {
	if path == "" {
		path = "ffmpeg"
	}
	return &Muxer{Path: path, log: zap.S().Named("mux")}
}

// Mux combines a downloaded video/audio file pair into one container at
// outputPath. The source files are never deleted here, even on failure, so a
// failed mux can be retried without re-downloading.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	tool, err := exec.LookPath(m.Path)
	if err != nil {
		return fmt.Errorf("%w: %s", bilifetch.ErrMuxerNotFound, m.Path)
	}
	cmd := exec.CommandContext(ctx, tool,
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "copy",
		"-y",
		outputPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	m.log.Debugw("running muxer", "tool", tool, "output", outputPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", bilifetch.ErrMuxFailed, err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
