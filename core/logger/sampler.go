package logger

import (
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/time/rate"
)

const defaultSampleEvery = 50

// sampler lets one in every N high-volume debug events through.
// A nil schedule means everything passes.
type sampler struct {
	every atomic.Pointer[rate.Sometimes]
}

func newSampler(every int) *sampler {
	s := &sampler{}
	s.Set(every)
	return s
}

// Set replaces the schedule and restarts counting.
func (s *sampler) Set(every int) {
	if every <= 1 {
		s.every.Store(nil)
		return
	}
	s.every.Store(&rate.Sometimes{Every: every})
}

// Allow reports whether the current event passes.
func (s *sampler) Allow() bool {
	st := s.every.Load()
	if st == nil {
		return true
	}
	pass := false
	st.Do(func() { pass = true })
	return pass
}

// parseSampleSpec reads "N" or "num/den" into a 1-in-N rate. "0", "off"
// and "all" disable sampling; anything unreadable keeps the default.
func parseSampleSpec(spec string) int {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return defaultSampleEvery
	case "0", "off", "all":
		return 1
	}
	if num, den, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return defaultSampleEvery
		}
		return max(d/n, 1)
	}
	if v, err := strconv.Atoi(spec); err == nil && v > 0 {
		return v
	}
	return defaultSampleEvery
}
