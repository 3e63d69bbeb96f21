// Package rank turns raw per-strategy candidate scores into one ranked
// result list: normalization onto [0,1], weighted blending, heuristic
// adjustments, and optional top-K reranking.
package rank

import (
	"fmt"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/pkg/types"
)

// Normalize rescales raw scores onto [0,1] using the configured mode.
// Normalization is local to the given score set; historical ranges are
// never consulted. The floor clamps low values up, not out: a score
// below the floor becomes the floor.
//
// min_max: linear rescale over the observed range; a set where every
// score is equal maps to all 1.0. max: divide by the observed max; a
// max of 0 maps to all 0.0.
func Normalize(scores []float64, mode config.NormalizationMode, floor float64) ([]float64, error) {
	if len(scores) == 0 {
		return nil, nil
	}

	out := make([]float64, len(scores))
	switch mode {
	case config.NormalizeMinMax:
		min, max := scores[0], scores[0]
		for _, s := range scores[1:] {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
		}
		if max == min {
			for i := range out {
				out[i] = 1.0
			}
			break
		}
		for i, s := range scores {
			out[i] = (s - min) / (max - min)
		}

	case config.NormalizeMax:
		max := scores[0]
		for _, s := range scores[1:] {
			if s > max {
				max = s
			}
		}
		if max == 0 {
			return out, nil
		}
		for i, s := range scores {
			out[i] = s / max
		}

	default:
		return nil, fmt.Errorf("%w: unknown normalization mode %q", types.ErrConfigInvalid, mode)
	}

	if floor > 0 {
		for i := range out {
			if out[i] < floor {
				out[i] = floor
			}
		}
	}
	return out, nil
}

// NormalizeByID normalizes a blockID-keyed score map in place-order
// independent fashion and returns a new map.
func NormalizeByID(scores map[string]float64, mode config.NormalizationMode, floor float64) (map[string]float64, error) {
	if len(scores) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scores))
	raw := make([]float64, 0, len(scores))
	for id, s := range scores {
		ids = append(ids, id)
		raw = append(raw, s)
	}

	normalized, err := Normalize(raw, mode, floor)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(ids))
	for i, id := range ids {
		out[id] = normalized[i]
	}
	return out, nil
}
