package soundplayer

import (
	"math/rand/v2"
	"time"

	"github.com/glebovdev/soundmix/internal/sound"
)

// NextSegment picks the segment to queue after prev (nil for the first pick).
//
// Premium segments are skipped unless premium is set. A bridge is always
// followed by the segment it leads to. Contiguous sounds move on from a
// regular segment through a bridge starting at it when one exists. Otherwise
// a random regular segment is chosen; bridges are only picked on their own
// when the pool holds nothing else.
func NextSegment(s *sound.Sound, prev *sound.Segment, premium bool, rng *rand.Rand) (*sound.Segment, error) {
	pool := make([]*sound.Segment, 0, len(s.Segments))
	for i := range s.Segments {
		if premium || s.Segments[i].IsFree {
			pool = append(pool, &s.Segments[i])
		}
	}
	if len(pool) == 0 {
		return nil, ErrNoSegments
	}

	if prev != nil && prev.IsBridge {
		for _, seg := range pool {
			if !seg.IsBridge && seg.Name == prev.To {
				return seg, nil
			}
		}
		return pickRegular(pool, rng), nil
	}

	if s.IsContiguous && prev != nil {
		bridges := filterSegments(pool, func(seg *sound.Segment) bool {
			return seg.IsBridge && seg.From == prev.Name
		})
		if len(bridges) > 0 {
			return bridges[rng.IntN(len(bridges))], nil
		}
	}

	return pickRegular(pool, rng), nil
}

func pickRegular(pool []*sound.Segment, rng *rand.Rand) *sound.Segment {
	regular := filterSegments(pool, func(seg *sound.Segment) bool { return !seg.IsBridge })
	if len(regular) == 0 {
		regular = pool
	}
	return regular[rng.IntN(len(regular))]
}

func filterSegments(pool []*sound.Segment, keep func(*sound.Segment) bool) []*sound.Segment {
	var out []*sound.Segment
	for _, seg := range pool {
		if keep(seg) {
			out = append(out, seg)
		}
	}
	return out
}

// SilenceGap draws the pause before the next play of a non-contiguous sound,
// uniformly from [MinSilence, maxSilence) seconds. It is zero when
// maxSilence does not exceed MinSilence.
func SilenceGap(maxSilence int, rng *rand.Rand) time.Duration {
	if maxSilence <= sound.MinSilence {
		return 0
	}
	lower := time.Duration(sound.MinSilence) * time.Second
	span := time.Duration(maxSilence-sound.MinSilence) * time.Second
	return lower + time.Duration(rng.Int64N(int64(span)))
}
