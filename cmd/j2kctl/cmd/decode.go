package cmd

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/cinderblocks/corej2k/jpeg2000"
	"github.com/spf13/cobra"
)

// NewDecodeCmd decodes a .j2k codestream to PNG or raw samples.
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <in.j2k> <out.png|out.raw>",
		Short: "decode a JPEG 2000 codestream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			layers, _ := cmd.Flags().GetInt("layers")

			dec := jpeg2000.NewDecoder()
			if layers > 0 {
				dec.SetMaxLayers(layers)
			}
			if err := dec.Decode(data); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			for _, w := range dec.Warnings {
				slog.WarnContext(ctx, "recovered", "detail", w)
			}
			if dec.Truncated() {
				slog.WarnContext(ctx, "codestream truncated, partial decode")
			}

			if strings.HasSuffix(args[1], ".png") {
				return writePNG(args[1], dec)
			}
			if err := os.WriteFile(args[1], dec.GetPixelData(), 0o644); err != nil {
				return err
			}
			slog.InfoContext(ctx, "decoded",
				"size", fmt.Sprintf("%dx%d", dec.Width(), dec.Height()),
				"components", dec.Components(), "depth", dec.BitDepth())
			return nil
		},
	}
	cmd.Flags().Int("layers", 0, "decode only the first N quality layers (0 = all)")
	return cmd
}

func writePNG(path string, dec *jpeg2000.Decoder) error {
	if dec.BitDepth() > 8 {
		return fmt.Errorf("PNG output supports 8-bit only, stream is %d-bit; use a .raw output", dec.BitDepth())
	}
	w, h := dec.Width(), dec.Height()
	planes := dec.GetImageData()

	var img image.Image
	switch dec.Components() {
	case 1:
		gray := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range planes[0] {
			gray.Pix[i] = byte(v)
		}
		img = gray
	case 3:
		rgba := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			rgba.SetRGBA(i%w, i/w, color.RGBA{byte(planes[0][i]), byte(planes[1][i]), byte(planes[2][i]), 255})
		}
		img = rgba
	default:
		return fmt.Errorf("PNG output supports 1 or 3 components, stream has %d", dec.Components())
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
