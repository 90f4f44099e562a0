package main

import "time"

const (
	levelTick     = 100 * time.Millisecond
	quietWarnAt   = 8 * time.Second
	quietGiveUpAt = 30 * time.Second

	// speechLevel is the block RMS above which a tick counts as voiced.
	speechLevel = 0.02

	voicedMin   = 0.10
	voicedClear = 0.25
)

type quietEvent int

const (
	quietNone    quietEvent = iota
	quietWarn               // no voice detected
	quietCleared            // voice is back
	quietRemind             // still nothing, toggle mode only
	quietGiveUp             // discard the recording, toggle mode only
)

// quietMonitor watches a sliding window of voiced/unvoiced ticks during a
// recording. Push-to-talk recordings only ever get the first warning; a
// toggled recording is reminded every quietWarnAt and abandoned when the
// whole quietGiveUpAt window stays below voicedMin.
type quietMonitor struct {
	warnTicks int
	size      int
	toggled   func() bool

	ticks    int
	voiced   []bool
	count    int
	warned   bool
	reminded int
}

func newQuietMonitor(toggled func() bool) *quietMonitor {
	size := int(quietGiveUpAt / levelTick)
	return &quietMonitor{
		warnTicks: int(quietWarnAt / levelTick),
		size:      size,
		toggled:   toggled,
		voiced:    make([]bool, size),
	}
}

// share returns the voiced fraction of the last n ticks.
func (m *quietMonitor) share(n int) float64 {
	n = min(n, m.ticks)
	if n == 0 {
		return 1
	}
	count := 0
	for i := 1; i <= n; i++ {
		if m.voiced[(m.ticks-i)%m.size] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *quietMonitor) Tick(voiced bool) quietEvent {
	slot := m.ticks % m.size
	if m.ticks >= m.size && m.voiced[slot] {
		m.count--
	}
	m.voiced[slot] = voiced
	if voiced {
		m.count++
	}
	m.ticks++

	recent := m.share(m.warnTicks)
	if m.ticks >= m.warnTicks && recent < voicedMin && !m.warned {
		m.warned = true
		m.reminded = m.ticks
		return quietWarn
	}
	if m.warned && recent >= voicedClear {
		m.warned = false
		return quietCleared
	}
	if m.toggled == nil || !m.toggled() {
		return quietNone
	}
	if m.ticks >= m.size && float64(m.count)/float64(m.size) < voicedMin {
		return quietGiveUp
	}
	if m.warned && m.ticks-m.reminded >= m.warnTicks {
		m.reminded = m.ticks
		return quietRemind
	}
	return quietNone
}
