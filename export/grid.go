// Package export renders batched video tensors into tiled preview media:
// animated GIFs, libx264 videos via ffmpeg, and per-frame PNG dumps.
package export

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/latentforge/animate/tensor"
)

// gridPadding is the pixel gap between grid cells and around the border.
const gridPadding = 2

// GridOptions configures SaveVideosGrid.
type GridOptions struct {
	// Rescale maps sample values from [-1,1] to [0,1] before quantizing.
	Rescale bool
	// NRows is the maximum number of grid columns. Zero means 6.
	NRows int
	// FPS is the playback rate. Zero means half the frame count, minimum 1.
	FPS int
	// SaveEveryImage additionally writes each grid frame as
	// <path-without-ext>/_<i>.png.
	SaveEveryImage bool
}

// SaveVideosGrid tiles a (B, C, T, H, W) video batch into one grid image per
// timestep and writes the sequence to path. A ".gif" extension produces an
// infinitely looping GIF; any other extension is encoded with libx264 through
// an ffmpeg subprocess.
func SaveVideosGrid(videos *tensor.Array, path string, opts GridOptions) error {
	if videos.NDim() != 5 {
		return fmt.Errorf("export: want a 5D (B, C, T, H, W) tensor, got shape %v", videos.Shape())
	}

	frames := videos.Dim(2)
	grids := make([]*image.NRGBA, frames)
	for t := 0; t < frames; t++ {
		grids[t] = gridFrame(videos, t, opts)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	fps := opts.FPS
	if fps == 0 {
		fps = 1
		if frames > 1 {
			fps = frames / 2
		}
	}

	slog.Debug("saving video grid", "path", path, "frames", frames, "fps", fps)

	var err error
	if strings.EqualFold(filepath.Ext(path), ".gif") {
		err = writeGIF(path, grids, fps)
	} else {
		err = writeVideo(path, grids, fps)
	}
	if err != nil {
		return err
	}

	if opts.SaveEveryImage {
		return saveFrames(strings.TrimSuffix(path, filepath.Ext(path)), grids)
	}
	return nil
}

// gridFrame composites timestep t of every batch sample into a single tiled
// image, torchvision make_grid layout: up to NRows columns, 2px padding
// between cells and around the border.
func gridFrame(videos *tensor.Array, t int, opts GridOptions) *image.NRGBA {
	b := videos.Dim(0)
	h, w := videos.Dim(3), videos.Dim(4)

	nrows := opts.NRows
	if nrows <= 0 {
		nrows = 6
	}
	xmaps := min(nrows, b)
	ymaps := (b + xmaps - 1) / xmaps

	cellW, cellH := w+gridPadding, h+gridPadding
	grid := image.NewNRGBA(image.Rect(0, 0, xmaps*cellW+gridPadding, ymaps*cellH+gridPadding))

	for n := 0; n < b; n++ {
		cell := frameImage(videos, n, t, opts.Rescale)
		x0 := (n%xmaps)*cellW + gridPadding
		y0 := (n/xmaps)*cellH + gridPadding
		draw.Draw(grid, image.Rect(x0, y0, x0+w, y0+h), cell, image.Point{}, draw.Src)
	}
	return grid
}

// frameImage quantizes one (C, H, W) frame to 8-bit. Values at or below 1.0
// are treated as normalized and scaled by 255; anything larger is taken as
// already byte-ranged. Single-channel frames replicate to gray.
func frameImage(videos *tensor.Array, n, t int, rescale bool) *image.NRGBA {
	c := videos.Dim(1)
	h, w := videos.Dim(3), videos.Dim(4)

	at := func(ch, y, x int) float32 {
		v := videos.Data()[((n*c+ch)*videos.Dim(2)+t)*h*w+y*w+x]
		if rescale {
			v = (v + 1) / 2
		}
		return v
	}

	var peak float32
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if v := at(ch, y, x); v > peak {
					peak = v
				}
			}
		}
	}
	scale := float32(1)
	if peak <= 1.0 {
		scale = 255
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var rgb [3]uint8
			for i := range rgb {
				ch := i
				if c == 1 {
					ch = 0
				}
				rgb[i] = clamp8(at(ch, y, x) * scale)
			}
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = rgb[0], rgb[1], rgb[2], 255
		}
	}
	return img
}

func clamp8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// writeGIF encodes the frames as an infinitely looping animated GIF.
func writeGIF(path string, frames []*image.NRGBA, fps int) error {
	out := gif.GIF{LoopCount: 0}
	delay := 100 / fps
	if delay < 1 {
		delay = 1
	}

	for _, frame := range frames {
		pal := image.NewPaletted(frame.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pal, frame.Bounds(), frame, image.Point{})
		out.Image = append(out.Image, pal)
		out.Delay = append(out.Delay, delay)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gif.EncodeAll(f, &out); err != nil {
		return fmt.Errorf("encode gif %q: %w", path, err)
	}
	return f.Close()
}

// writeVideo encodes the frames with libx264 by feeding numbered PNGs to an
// ffmpeg subprocess.
func writeVideo(path string, frames []*image.NRGBA, fps int) error {
	dir, err := os.MkdirTemp("", "animate-grid-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	for i, frame := range frames {
		if err := writePNG(filepath.Join(dir, fmt.Sprintf("%06d.png", i)), frame); err != nil {
			return err
		}
	}

	cmd := exec.Command("ffmpeg",
		"-y",
		"-framerate", fmt.Sprint(fps),
		"-i", filepath.Join(dir, "%06d.png"),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg encode %q: %w: %s", path, err, out)
	}
	return nil
}

// saveFrames writes every grid frame as <dir>/_<i>.png, one goroutine per
// frame.
func saveFrames(dir string, frames []*image.NRGBA) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var g errgroup.Group
	for i, frame := range frames {
		g.Go(func() error {
			return writePNG(filepath.Join(dir, fmt.Sprintf("_%d.png", i)), frame)
		})
	}
	return g.Wait()
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png %q: %w", path, err)
	}
	return f.Close()
}
