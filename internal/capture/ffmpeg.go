package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// maxFrameSize bounds a single JPEG read from the pipe.
const maxFrameSize = 10 * 1024 * 1024

// FrameCallback is called for each extracted JPEG frame.
type FrameCallback func(frameData []byte)

// Options describe the ffmpeg input.
type Options struct {
	Device      string
	InputFormat string
	FPS         int
	Width       int
}

// FFmpegExtractor pipes MJPEG frames out of an ffmpeg process.
type FFmpegExtractor struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

// buildArgs assembles the ffmpeg command line for opts.
func buildArgs(opts Options) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch {
	case strings.HasPrefix(opts.Device, "rtsp://"), strings.HasPrefix(opts.Device, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000", // microseconds
		)
	case strings.HasPrefix(opts.Device, "http://"), strings.HasPrefix(opts.Device, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	case opts.InputFormat != "":
		args = append(args, "-f", opts.InputFormat)
	}

	vf := fmt.Sprintf("fps=%d", opts.FPS)
	if opts.Width > 0 {
		vf += fmt.Sprintf(",scale=%d:-1", opts.Width)
	}

	return append(args,
		"-i", opts.Device,
		"-vf", vf,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// StartExtraction runs ffmpeg and calls callback for every JPEG frame. It
// blocks until ctx is cancelled or the input ends.
func (f *FFmpegExtractor) StartExtraction(ctx context.Context, opts Options, callback FrameCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", buildArgs(opts)...)
	f.mu.Lock()
	f.cmd = cmd
	f.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	if err := readJPEGFrames(ctx, stdout, callback); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}

	return cmd.Wait()
}

// Stop terminates the ffmpeg process.
func (f *FFmpegExtractor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// readJPEGFrames splits a stream of concatenated JPEG images. An empty
// stream is tolerated for up to 5s while the device opens.
func readJPEGFrames(ctx context.Context, r io.Reader, callback FrameCallback) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := findJPEGStart(reader)
		if errors.Is(err, io.EOF) {
			if framesRead == 0 && startupRetries < maxStartupRetries {
				startupRetries++
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if framesRead > 0 {
				return nil
			}
			return fmt.Errorf("no frames received from ffmpeg (waited %.1fs)", float64(startupRetries)*0.1)
		}
		if err != nil {
			return err
		}

		frameData, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && framesRead > 0 {
				return nil
			}
			return err
		}

		framesRead++
		callback(frameData)
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
