package t2

import "fmt"

// PacketCoords identifies one packet within a tile.
type PacketCoords struct {
	Layer      int
	Resolution int
	Component  int
	Precinct   int
}

// ProgressionVolume bounds one progression change, A.6.6. Layers run
// [0, LayerEnd), resolutions [ResStart, ResEnd) and components
// [CompStart, CompEnd), each under the volume's own order.
type ProgressionVolume struct {
	Order      ProgressionOrder
	LayerEnd   int
	ResStart   int
	ResEnd     int
	CompStart  int
	CompEnd    int
}

// Progression generates the packet sequence for one tile. Precinct
// counts may differ per component and resolution, so they come from a
// callback. Positional orders walk precincts in raster index order.
type Progression struct {
	numLayers      int
	numResolutions int
	numComponents  int
	numPrecincts   func(comp, res int) int
	volumes        []ProgressionVolume
}

// NewProgression builds a single-order progression covering the whole
// tile.
func NewProgression(order ProgressionOrder, layers, resolutions, components int, numPrecincts func(comp, res int) int) *Progression {
	return &Progression{
		numLayers:      layers,
		numResolutions: resolutions,
		numComponents:  components,
		numPrecincts:   numPrecincts,
		volumes: []ProgressionVolume{{
			Order:    order,
			LayerEnd: layers,
			ResEnd:   resolutions,
			CompEnd:  components,
		}},
	}
}

// NewProgressionWithChanges builds a progression from POC volumes,
// applied in order. Packets already emitted by an earlier volume are
// skipped when a later volume revisits them.
func NewProgressionWithChanges(volumes []ProgressionVolume, layers, resolutions, components int, numPrecincts func(comp, res int) int) *Progression {
	return &Progression{
		numLayers:      layers,
		numResolutions: resolutions,
		numComponents:  components,
		numPrecincts:   numPrecincts,
		volumes:        volumes,
	}
}

// Packets returns the full packet sequence. It fails when the volumes
// leave part of the tile uncovered, since a decoder would then run out
// of packets mid-codestream.
func (pr *Progression) Packets() ([]PacketCoords, error) {
	total := 0
	for c := 0; c < pr.numComponents; c++ {
		for r := 0; r < pr.numResolutions; r++ {
			total += pr.numLayers * pr.numPrecincts(c, r)
		}
	}

	seen := make(map[PacketCoords]bool, total)
	out := make([]PacketCoords, 0, total)
	emit := func(pc PacketCoords) {
		if pc.Precinct >= pr.numPrecincts(pc.Component, pc.Resolution) {
			return
		}
		if seen[pc] {
			return
		}
		seen[pc] = true
		out = append(out, pc)
	}

	for _, v := range pr.volumes {
		pr.emitVolume(v, emit)
	}

	if len(out) != total {
		return nil, fmt.Errorf("progression covers %d of %d packets", len(out), total)
	}
	return out, nil
}

func (pr *Progression) emitVolume(v ProgressionVolume, emit func(PacketCoords)) {
	le := min(v.LayerEnd, pr.numLayers)
	rs, re := v.ResStart, min(v.ResEnd, pr.numResolutions)
	cs, ce := v.CompStart, min(v.CompEnd, pr.numComponents)

	maxPrec := 0
	for c := cs; c < ce; c++ {
		for r := rs; r < re; r++ {
			if n := pr.numPrecincts(c, r); n > maxPrec {
				maxPrec = n
			}
		}
	}

	switch v.Order {
	case ProgressionLRCP:
		for l := 0; l < le; l++ {
			for r := rs; r < re; r++ {
				for c := cs; c < ce; c++ {
					for p := 0; p < pr.numPrecincts(c, r); p++ {
						emit(PacketCoords{l, r, c, p})
					}
				}
			}
		}
	case ProgressionRLCP:
		for r := rs; r < re; r++ {
			for l := 0; l < le; l++ {
				for c := cs; c < ce; c++ {
					for p := 0; p < pr.numPrecincts(c, r); p++ {
						emit(PacketCoords{l, r, c, p})
					}
				}
			}
		}
	case ProgressionRPCL:
		for r := rs; r < re; r++ {
			for p := 0; p < maxPrec; p++ {
				for c := cs; c < ce; c++ {
					for l := 0; l < le; l++ {
						emit(PacketCoords{l, r, c, p})
					}
				}
			}
		}
	case ProgressionPCRL:
		for p := 0; p < maxPrec; p++ {
			for c := cs; c < ce; c++ {
				for r := rs; r < re; r++ {
					for l := 0; l < le; l++ {
						emit(PacketCoords{l, r, c, p})
					}
				}
			}
		}
	case ProgressionCPRL:
		for c := cs; c < ce; c++ {
			for p := 0; p < maxPrec; p++ {
				for r := rs; r < re; r++ {
					for l := 0; l < le; l++ {
						emit(PacketCoords{l, r, c, p})
					}
				}
			}
		}
	}
}
