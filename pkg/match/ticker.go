package match

import "time"

// Ticker is the part of time.Ticker the coordinator uses, so tests can
// fire ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

func ProvideTickerFactory() TickerFactory {
	return func(d time.Duration) Ticker {
		return timeTicker{time.NewTicker(d)}
	}
}
