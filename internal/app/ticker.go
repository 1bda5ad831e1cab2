package app

import "time"

type timeTicker struct {
	t *time.Ticker
}

// NewTicker adapts time.Ticker to Ticker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }

func (t timeTicker) Stop() { t.t.Stop() }
