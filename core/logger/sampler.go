package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler passes num out of every den events. A zero ratio passes everything.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	seen  atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *sampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
	} else {
		num = min(num, den)
		s.ratio.Store(uint64(num)<<32 | uint64(uint32(den)))
	}
	s.seen.Store(0)
}

// Allow reports whether the next event is kept.
func (s *sampler) Allow() bool {
	r := s.ratio.Load()
	num, den := r>>32, r&0xffffffff
	if num == 0 || den == 0 {
		return true
	}
	return (s.seen.Add(1)-1)%den < num
}

// parseSampleSpec reads "n/d" or "d" (meaning 1/d). Anything unreadable or
// non-positive yields 0/0.
func parseSampleSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	if head, tail, ok := strings.Cut(spec, "/"); ok {
		num, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			return 0, 0
		}
		den, err := strconv.Atoi(strings.TrimSpace(tail))
		if err != nil {
			return 0, 0
		}
		return num, den
	}
	den, err := strconv.Atoi(spec)
	if err != nil || den <= 0 {
		return 0, 0
	}
	return 1, den
}
