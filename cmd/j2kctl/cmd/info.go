package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/cinderblocks/corej2k/jpeg2000/codestream"
	"github.com/spf13/cobra"
)

var progressionNames = []string{"LRCP", "RLCP", "RPCL", "PCRL", "CPRL"}

// NewInfoCmd dumps the marker structure of a raw .j2k codestream.
func NewInfoCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file.j2k>",
		Short: "dump codestream markers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			h, err := codestream.Parse(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			printHeader(h, len(data))
			return nil
		},
	}
	return cmd
}

func printHeader(h *codestream.Header, size int) {
	siz := h.SIZ
	fmt.Printf("codestream: %d bytes", size)
	if h.Truncated {
		fmt.Print(" (truncated)")
	}
	fmt.Println()
	fmt.Printf("SIZ: image %dx%d origin (%d,%d), tiles %dx%d origin (%d,%d), grid %dx%d\n",
		siz.Xsiz, siz.Ysiz, siz.XOsiz, siz.YOsiz,
		siz.XTsiz, siz.YTsiz, siz.XTOsiz, siz.YTOsiz,
		siz.NumTilesX(), siz.NumTilesY())
	for i, c := range siz.Components {
		sign := "unsigned"
		if c.IsSigned() {
			sign = "signed"
		}
		fmt.Printf("  component %d: %d-bit %s, subsampling %dx%d\n",
			i, c.BitDepth(), sign, c.XRsiz, c.YRsiz)
	}

	cod := h.COD
	order := "?"
	if int(cod.ProgressionOrder) < len(progressionNames) {
		order = progressionNames[cod.ProgressionOrder]
	}
	transform := "9/7 irreversible"
	if cod.Transform == 1 {
		transform = "5/3 reversible"
	}
	cbw, cbh := cod.CodeBlockSize()
	fmt.Printf("COD: %s, %d layers, %d levels, code-blocks %dx%d, style 0x%02x, %s, SOP=%v EPH=%v\n",
		order, cod.NumLayers, cod.NumDecompLevels, cbw, cbh, cod.CodeBlockStyle, transform, cod.UseSOP, cod.UseEPH)

	qcd := h.QCD
	fmt.Printf("QCD: style %d, %d guard bits, %d steps\n", qcd.Style, qcd.GuardBits, len(qcd.Steps))
	for _, r := range h.RGN {
		fmt.Printf("RGN: component %d, max-shift %d\n", r.Component, r.Shift)
	}
	for _, p := range h.POC {
		fmt.Printf("POC: order %d, layers<%d, res %d..%d, comps %d..%d\n",
			p.Ppoc, p.LYEpoc, p.RSpoc, p.REpoc, p.CSpoc, p.CEpoc)
	}
	if len(h.TLM) > 0 {
		fmt.Printf("TLM: %d tile-part lengths\n", len(h.TLM))
	}
	for _, c := range h.COM {
		if c.Rcom == 1 {
			fmt.Printf("COM: %q\n", string(c.Data))
		} else {
			fmt.Printf("COM: %d binary bytes\n", len(c.Data))
		}
	}

	for _, tp := range h.TileParts {
		fmt.Printf("tile %d part %d: %d data bytes", tp.SOT.Isot, tp.SOT.TPsot, len(tp.Data))
		if len(tp.PLT) > 0 {
			fmt.Printf(", %d packet lengths", len(tp.PLT))
		}
		fmt.Println()
	}
}
