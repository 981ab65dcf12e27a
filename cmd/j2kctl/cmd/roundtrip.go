package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cinderblocks/corej2k/jpeg2000"
	"github.com/spf13/cobra"
)

// NewRoundtripCmd encodes and immediately decodes an image, reporting
// size and distortion. With --lossless any pixel difference is an error.
func NewRoundtripCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roundtrip <in.png|in.raw>",
		Short: "verify encode/decode fidelity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pixels, w, h, comps, err := readImage(cmd, args[0])
			if err != nil {
				return err
			}

			params := jpeg2000.DefaultEncodeParams(w, h, comps, 8, false)
			params.Lossless, _ = cmd.Flags().GetBool("lossless")
			params.Quality, _ = cmd.Flags().GetInt("quality")
			params.NumLevels, _ = cmd.Flags().GetInt("levels")

			encoded, err := jpeg2000.NewEncoder(params).Encode(pixels)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}

			dec := jpeg2000.NewDecoder()
			if err := dec.Decode(encoded); err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			decoded := dec.GetPixelData()
			if len(decoded) != len(pixels) {
				return fmt.Errorf("decoded %d samples, want %d", len(decoded), len(pixels))
			}

			var sse float64
			diffs := 0
			for i := range pixels {
				d := int(pixels[i]) - int(decoded[i])
				if d != 0 {
					diffs++
				}
				sse += float64(d * d)
			}
			mse := sse / float64(len(pixels))
			psnr := math.Inf(1)
			if mse > 0 {
				psnr = 10 * math.Log10(255*255/mse)
			}

			slog.InfoContext(ctx, "roundtrip",
				"input", args[0],
				"compressed", len(encoded),
				"ratio", fmt.Sprintf("%.2f", float64(len(pixels))/float64(len(encoded))),
				"differing", diffs,
				"psnr", fmt.Sprintf("%.2f dB", psnr))

			if params.Lossless && diffs > 0 {
				return fmt.Errorf("lossless roundtrip changed %d of %d samples", diffs, len(pixels))
			}
			return nil
		},
	}
	pf := cmd.Flags()
	pf.Bool("lossless", true, "reversible 5/3 transform")
	pf.Int("quality", 80, "quality 1-100 for lossy encodes")
	pf.Int("levels", 5, "wavelet decomposition levels")
	pf.Int("width", 0, "width for raw input")
	pf.Int("height", 0, "height for raw input")
	return cmd
}
