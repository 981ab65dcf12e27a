package jpeg2000

// MaxShift region-of-interest coding. The encoder scales ROI
// coefficient magnitudes up by a shift at least as large as the bit
// length of the largest background magnitude; the decoder undoes the
// shift by magnitude comparison alone, so no ROI geometry travels in
// the codestream beyond the RGN marker's shift value.

// Point is an integer image coordinate.
type Point struct {
	X int
	Y int
}

// ROIRect is an axis-aligned rectangle [X0,X0+Width) by [Y0,Y0+Height)
// in image coordinates.
type ROIRect struct {
	X0     int
	Y0     int
	Width  int
	Height int
}

// ROIRegion describes one region of interest: a rectangle, a polygon,
// or both (their union). Components limits the region to the listed
// component indices; empty means all.
type ROIRegion struct {
	Rect       *ROIRect
	Polygon    []Point
	Components []int
}

// ROIConfig groups the regions for one encode. Shift is the MaxShift
// value; zero selects the smallest conforming shift automatically.
type ROIConfig struct {
	Regions []ROIRegion
	Shift   int
}

// IsEmpty reports whether the config selects no region.
func (cfg *ROIConfig) IsEmpty() bool {
	return cfg == nil || len(cfg.Regions) == 0
}

// Validate checks the region geometry against the image dimensions.
func (cfg *ROIConfig) Validate(imgWidth, imgHeight, components int) error {
	if cfg.IsEmpty() {
		return nil
	}
	if cfg.Shift < 0 || cfg.Shift > 37 {
		return configErr("roi", "shift %d out of range 0..37", cfg.Shift)
	}
	for i := range cfg.Regions {
		r := &cfg.Regions[i]
		if r.Rect == nil && len(r.Polygon) < 3 {
			return configErr("roi", "region %d has neither a rectangle nor a polygon", i)
		}
		if rect := r.Rect; rect != nil {
			if rect.Width <= 0 || rect.Height <= 0 {
				return configErr("roi", "region %d rectangle is empty", i)
			}
			if rect.X0 < 0 || rect.Y0 < 0 || rect.X0+rect.Width > imgWidth || rect.Y0+rect.Height > imgHeight {
				return configErr("roi", "region %d rectangle exceeds the %dx%d image", i, imgWidth, imgHeight)
			}
		}
		for _, p := range r.Polygon {
			if p.X < 0 || p.Y < 0 || p.X >= imgWidth || p.Y >= imgHeight {
				return configErr("roi", "region %d polygon vertex (%d,%d) outside the image", i, p.X, p.Y)
			}
		}
		for _, c := range r.Components {
			if c < 0 || c >= components {
				return configErr("roi", "region %d component %d out of range", i, c)
			}
		}
	}
	return nil
}

// BuildMask rasterizes the regions that apply to one component into a
// full-resolution mask. Returns nil when no region covers comp.
func (cfg *ROIConfig) BuildMask(comp, imgWidth, imgHeight int) *roiMask {
	if cfg.IsEmpty() {
		return nil
	}
	var mask *roiMask
	for i := range cfg.Regions {
		r := &cfg.Regions[i]
		if len(r.Components) > 0 {
			found := false
			for _, c := range r.Components {
				if c == comp {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if mask == nil {
			mask = newROIMask(imgWidth, imgHeight)
		}
		if r.Rect != nil {
			mask.setRect(r.Rect.X0, r.Rect.Y0, r.Rect.X0+r.Rect.Width, r.Rect.Y0+r.Rect.Height)
		}
		if len(r.Polygon) >= 3 {
			mask.orPolygon(r.Polygon)
		}
	}
	return mask
}

// applyROIShift scales the masked coefficients of one code-block up.
// inROI is indexed in block raster order, same length as coeffs.
func applyROIShift(coeffs []int32, inROI []bool, shift int) {
	for i := range coeffs {
		if !inROI[i] {
			continue
		}
		if coeffs[i] >= 0 {
			coeffs[i] <<= shift
		} else {
			coeffs[i] = -((-coeffs[i]) << shift)
		}
	}
}

// removeROIShift undoes MaxShift scaling: any magnitude at or above
// 2^shift belongs to the ROI and is scaled back down.
func removeROIShift(coeffs []int32, shift int) {
	if shift <= 0 {
		return
	}
	thresh := int32(1) << shift
	for i, c := range coeffs {
		mag := c
		if mag < 0 {
			mag = -mag
		}
		if mag < thresh {
			continue
		}
		mag >>= shift
		if c < 0 {
			mag = -mag
		}
		coeffs[i] = mag
	}
}
