package capture

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJPEGFrames(t *testing.T) {
	stream := []byte{
		0x00, 0x01, // garbage before the first frame
		0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9,
		0xFF, 0xD8, 0x30, 0xFF, 0x00, 0xFF, 0xD9,
	}

	var frames [][]byte
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(f []byte) {
		frames = append(frames, f)
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x10, 0x20, 0xFF, 0xD9}, frames[0])
	assert.Equal(t, []byte{0xFF, 0xD8, 0x30, 0xFF, 0x00, 0xFF, 0xD9}, frames[1])
}

func TestReadJPEGFrames_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := readJPEGFrames(ctx, bytes.NewReader(nil), func([]byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs(Options{Device: "/dev/video0", InputFormat: "v4l2", FPS: 15, Width: 640})
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "warning",
		"-f", "v4l2",
		"-i", "/dev/video0",
		"-vf", "fps=15,scale=640:-1",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "pipe:1",
	}, args)

	rtsp := buildArgs(Options{Device: "rtsp://cam/stream", InputFormat: "v4l2", FPS: 5})
	assert.Contains(t, rtsp, "-rtsp_transport")
	assert.NotContains(t, rtsp, "v4l2")
	assert.Contains(t, rtsp, "fps=5")
}
