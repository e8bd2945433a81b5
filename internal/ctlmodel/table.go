package ctlmodel

import "sort"

// TableInterpolated demonstrates the substitution spec §9 Open Question
// (b) anticipates: a crude-specific correction curve, linearly
// interpolated between calibration points, instead of the single-slope
// linear approximation. It is registered alongside Linear but not used
// by default; operators select it by name via ctlmodel.Get.
type TableInterpolated struct {
	// Points maps observed temperature offset from base (degF) to CTL
	// factor. Unset, it falls back to four points consistent with the
	// linear model at the default alpha, so the two models agree at
	// their anchors.
	Points map[float64]float64
}

func (t TableInterpolated) Name() string { return "table" }

func defaultPoints(alpha float64) map[float64]float64 {
	return map[float64]float64{
		-60: 1.0 - alpha*-60,
		0:   1.0,
		60:  1.0 - alpha*60,
		120: 1.0 - alpha*120,
	}
}

func (t TableInterpolated) CTL(tempObsDegF, tempBaseDegF, alpha float64) (float64, bool) {
	points := t.Points
	if points == nil {
		points = defaultPoints(alpha)
	}
	offset := tempObsDegF - tempBaseDegF

	keys := make([]float64, 0, len(points))
	for k := range points {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	var raw float64
	switch {
	case offset <= keys[0]:
		raw = points[keys[0]]
	case offset >= keys[len(keys)-1]:
		raw = points[keys[len(keys)-1]]
	default:
		raw = 1.0
		for i := 0; i < len(keys)-1; i++ {
			lo, hi := keys[i], keys[i+1]
			if offset >= lo && offset <= hi {
				fLo, fHi := points[lo], points[hi]
				frac := (offset - lo) / (hi - lo)
				raw = fLo + frac*(fHi-fLo)
				break
			}
		}
	}
	return clamp(raw)
}

func clamp(ctl float64) (float64, bool) {
	if ctl < 0.90 {
		return 0.90, true
	}
	if ctl > 1.10 {
		return 1.10, true
	}
	return ctl, false
}
