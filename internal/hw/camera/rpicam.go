package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/fsutil"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// RpicamStill captures by running rpicam-still with the profile settings.
type RpicamStill struct {
	outputDir string
	filename  *strftime.Strftime
	opts      config.RpicamConfig

	// Run and Now are replaceable for tests.
	Run Runner
	Now func() time.Time
}

// NewRpicamStill validates the filename pattern and returns a camera writing
// into outputDir ("~" is expanded, the directory is created on first shot).
func NewRpicamStill(outputDir, filenameFormat string, opts config.RpicamConfig) (*RpicamStill, error) {
	if filenameFormat == "" {
		filenameFormat = "%Y%m%d_%H%M%S.jpg"
	}
	f, err := strftime.New(filenameFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: camera.filename_format %q: %v", config.ErrMalformedProfile, filenameFormat, err)
	}
	if opts.Binary == "" {
		opts.Binary = "rpicam-still"
	}
	return &RpicamStill{
		outputDir: outputDir,
		filename:  f,
		opts:      opts,
		Run:       ExecRunner,
		Now:       time.Now,
	}, nil
}

// OutputFile returns the path for a capture taken at t, creating the
// output directory.
func (r *RpicamStill) OutputFile(t time.Time) (string, error) {
	dir, err := fsutil.EnsureDir(r.outputDir)
	if err != nil {
		return "", fmt.Errorf("output dir: %w", err)
	}
	return filepath.Join(dir, r.filename.FormatString(t)), nil
}

// Shoot runs one rpicam-still capture.
func (r *RpicamStill) Shoot(ctx context.Context) (string, error) {
	out, err := r.OutputFile(r.Now())
	if err != nil {
		return "", err
	}
	args := BuildArgs(r.opts, out)
	debug.Verbose("Capture cmd: %s %s", r.opts.Binary, strings.Join(args, " "))

	start := time.Now()
	output, err := r.Run(ctx, r.opts.Binary, args...)
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", r.opts.Binary, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", r.opts.Binary, err)
	}
	debug.Verbose("Capture took %s", debug.Duration(time.Since(start)))
	return out, nil
}

// BuildArgs returns the rpicam-still arguments for opts. Unset options are
// omitted so the program's own defaults apply.
func BuildArgs(opts config.RpicamConfig, outfile string) []string {
	args := []string{"-o", outfile}

	if opts.Nopreview != nil && *opts.Nopreview {
		args = append(args, "--nopreview")
	}

	// Resolution
	args = appendInt(args, "--width", opts.Width)
	args = appendInt(args, "--height", opts.Height)

	// Orientation
	args = appendInt(args, "--rotation", opts.Rotation)
	if opts.HFlip {
		args = append(args, "--hflip")
	}
	if opts.VFlip {
		args = append(args, "--vflip")
	}

	// Tuning
	args = appendString(args, "--awb", opts.AWB)
	args = appendInt(args, "--ev", opts.EV)
	args = appendString(args, "--denoise", opts.Denoise)
	args = appendFloat(args, "--sharpness", opts.Sharpness)

	// Exposure and white balance locks
	args = appendInt(args, "--shutter", opts.Shutter)
	args = appendFloat(args, "--gain", opts.Gain)
	args = appendString(args, "--awbgains", opts.AWBGains)

	// Color and tone
	args = appendFloat(args, "--saturation", opts.Saturation)
	args = appendFloat(args, "--contrast", opts.Contrast)
	args = appendFloat(args, "--brightness", opts.Brightness)

	// Metering and focus
	args = appendString(args, "--metering", opts.Metering)
	args = appendString(args, "--autofocus-mode", opts.AutofocusMode)
	args = appendFloat(args, "--lens-position", opts.LensPosition)

	args = appendInt(args, "--quality", opts.Quality)
	args = appendInt(args, "--timeout", opts.Timeout)
	return args
}

func appendInt(args []string, flag string, v *int) []string {
	if v == nil {
		return args
	}
	return append(args, flag, strconv.Itoa(*v))
}

func appendFloat(args []string, flag string, v *float64) []string {
	if v == nil {
		return args
	}
	return append(args, flag, strconv.FormatFloat(*v, 'f', -1, 64))
}

func appendString(args []string, flag string, v *string) []string {
	if v == nil {
		return args
	}
	return append(args, flag, *v)
}
