package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cinderblocks/corej2k/jpeg2000"
	"github.com/spf13/cobra"
)

// NewEncodeCmd encodes a PNG or raw grayscale file to a .j2k codestream.
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <in.png|in.raw> <out.j2k>",
		Short: "encode an image to a JPEG 2000 codestream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pixels, w, h, comps, err := readImage(cmd, args[0])
			if err != nil {
				return err
			}

			params := jpeg2000.DefaultEncodeParams(w, h, comps, 8, false)
			params.Lossless, _ = cmd.Flags().GetBool("lossless")
			params.Quality, _ = cmd.Flags().GetInt("quality")
			params.NumLevels, _ = cmd.Flags().GetInt("levels")
			params.NumLayers, _ = cmd.Flags().GetInt("layers")
			params.TargetRatio, _ = cmd.Flags().GetFloat64("ratio")
			order, _ := cmd.Flags().GetInt("order")
			params.ProgressionOrder = uint8(order)

			start := time.Now()
			encoded, err := jpeg2000.NewEncoder(params).Encode(pixels)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if err := os.WriteFile(args[1], encoded, 0o644); err != nil {
				return err
			}
			slog.InfoContext(ctx, "encoded",
				"input", args[0], "output", args[1],
				"pixels", len(pixels), "bytes", len(encoded),
				"ratio", fmt.Sprintf("%.2f", float64(len(pixels))/float64(len(encoded))),
				"elapsed", time.Since(start))
			return nil
		},
	}
	pf := cmd.Flags()
	pf.Bool("lossless", true, "reversible 5/3 transform")
	pf.Int("quality", 80, "quality 1-100 for lossy encodes")
	pf.Int("levels", 5, "wavelet decomposition levels")
	pf.Int("layers", 1, "quality layers")
	pf.Float64("ratio", 0, "target compression ratio (0 = none)")
	pf.Int("order", 0, "progression order (0=LRCP .. 4=CPRL)")
	pf.Int("width", 0, "width for raw input")
	pf.Int("height", 0, "height for raw input")
	return cmd
}

// readImage loads a PNG (gray or RGB) or, with --width/--height, a raw
// 8-bit grayscale dump. Returns interleaved samples.
func readImage(cmd *cobra.Command, path string) (pixels []byte, w, h, comps int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	if !strings.HasSuffix(path, ".png") {
		w, _ = cmd.Flags().GetInt("width")
		h, _ = cmd.Flags().GetInt("height")
		if w <= 0 || h <= 0 {
			return nil, 0, 0, 0, fmt.Errorf("raw input needs --width and --height")
		}
		if len(data) != w*h {
			return nil, 0, 0, 0, fmt.Errorf("raw input is %d bytes, want %d for %dx%d 8-bit gray", len(data), w*h, w, h)
		}
		return data, w, h, 1, nil
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	w, h = b.Dx(), b.Dy()
	if gray, ok := img.(*image.Gray); ok {
		pixels = make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(pixels[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
		}
		return pixels, w, h, 1, nil
	}
	pixels = make([]byte, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pixels[i] = byte(r >> 8)
			pixels[i+1] = byte(g >> 8)
			pixels[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return pixels, w, h, 3, nil
}
