package t2

// ProgressionOrder selects the nesting of the packet emission loops.
type ProgressionOrder uint8

const (
	ProgressionLRCP ProgressionOrder = 0
	ProgressionRLCP ProgressionOrder = 1
	ProgressionRPCL ProgressionOrder = 2
	ProgressionPCRL ProgressionOrder = 3
	ProgressionCPRL ProgressionOrder = 4
)

func (p ProgressionOrder) String() string {
	switch p {
	case ProgressionLRCP:
		return "LRCP"
	case ProgressionRLCP:
		return "RLCP"
	case ProgressionRPCL:
		return "RPCL"
	case ProgressionPCRL:
		return "PCRL"
	case ProgressionCPRL:
		return "CPRL"
	default:
		return "UNKNOWN"
	}
}

// BlockContribution is one code-block's share of a packet: how many
// new coding passes it contributes and the codeword segments holding
// their bytes. SegPasses and SegLengths run in parallel, one entry per
// codeword segment.
type BlockContribution struct {
	Index          int
	Included       bool
	FirstInclusion bool
	ZeroBitPlanes  int
	NumPasses      int
	SegPasses      []int
	SegLengths     []int
	DataLength     int
	Data           []byte
}

// Packet holds one parsed or assembled packet. Header and Body stay
// byte-exact so the caller can splice packets into a codestream.
type Packet struct {
	Layer      int
	Resolution int
	Component  int
	Precinct   int

	Empty  bool
	Header []byte
	Body   []byte

	Blocks []BlockContribution
}

// BlockState is the per-code-block header state that persists across
// the packets of one precinct.
type BlockState struct {
	Included      bool
	FirstLayer    int
	ZeroBitPlanes int
	Lblock        int
	PassesSeen    int
}

// PrecinctState carries the tag trees and per-block state one precinct
// needs across its sequence of packets. The same structure serves the
// encoder and the decoder; each side drives its own trees.
type PrecinctState struct {
	W, H   int
	incl   *TagTree
	zbp    *TagTree
	Blocks []*BlockState
}

// NewPrecinctState allocates state for a precinct whose code-blocks
// form a w by h grid.
// A zero-area grid is valid: the precinct contributes no header bits.
func NewPrecinctState(w, h int) *PrecinctState {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	ps := &PrecinctState{
		W:    w,
		H:    h,
		incl: NewTagTree(w, h),
		zbp:  NewTagTree(w, h),
	}
	ps.Blocks = make([]*BlockState, w*h)
	for i := range ps.Blocks {
		ps.Blocks[i] = &BlockState{FirstLayer: -1, Lblock: 3}
	}
	return ps
}

// SetBlockValues primes the encoder-side tag trees. firstLayer[i] is
// the layer in which block i is first included (a value at or beyond
// the layer count means never), zeroBitPlanes[i] its missing MSB
// count. Must be called once, before the first packet is encoded.
func (ps *PrecinctState) SetBlockValues(firstLayer, zeroBitPlanes []int) {
	for y := 0; y < ps.H; y++ {
		for x := 0; x < ps.W; x++ {
			i := y*ps.W + x
			if i < len(firstLayer) {
				ps.incl.SetValue(x, y, firstLayer[i])
			}
			if i < len(zeroBitPlanes) {
				ps.zbp.SetValue(x, y, zeroBitPlanes[i])
			}
		}
	}
}

// Reset returns the precinct to its pre-first-packet state.
func (ps *PrecinctState) Reset() {
	ps.incl.Reset()
	ps.zbp.Reset()
	for _, b := range ps.Blocks {
		b.Included = false
		b.FirstLayer = -1
		b.ZeroBitPlanes = 0
		b.Lblock = 3
		b.PassesSeen = 0
	}
}
