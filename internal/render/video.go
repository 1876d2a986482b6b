package render

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/icza/mjpeg"

	"github.com/talgya/episim/internal/engine"
)

// Video appends each snapshot as a frame of an MJPEG AVI file.
type Video struct {
	path   string
	size   int
	w      mjpeg.AviWriter
	frames int
	bytes  uint64
}

// NewVideo opens an AVI file whose frames are 2*size × size pixels.
func NewVideo(path string, size, fps int) (*Video, error) {
	if size <= 0 {
		size = DefaultPanelSize
	}
	if fps <= 0 {
		fps = 10
	}
	w, err := mjpeg.New(path, int32(2*size), int32(size), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &Video{path: path, size: size, w: w}, nil
}

func (v *Video) Render(snap *engine.Snapshot) error {
	img, err := Frame(snap, v.size)
	if err != nil {
		return fmt.Errorf("video frame %d: %w", snap.Step, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encode video frame %d: %w", snap.Step, err)
	}
	if err := v.w.AddFrame(buf.Bytes()); err != nil {
		return fmt.Errorf("add video frame %d: %w", snap.Step, err)
	}
	v.frames++
	v.bytes += uint64(buf.Len())
	return nil
}

// Frames returns how many frames have been written.
func (v *Video) Frames() int {
	return v.frames
}

// Close finalises the AVI index.
func (v *Video) Close() error {
	if err := v.w.Close(); err != nil {
		return fmt.Errorf("close video %s: %w", v.path, err)
	}
	slog.Info("video written", "path", v.path, "frames", v.frames, "size", humanize.Bytes(v.bytes))
	return nil
}
