package config

import (
	"flag"
	"time"
)

type Config struct {
	PollIntervalMillis *int
	MaxPollAttempts    *int
	ServerSidePolling  *bool

	TicketStaleSeconds   *int
	PresenceTtlSeconds   *int
	BillingIntervalSecs  *int
	MaxCandidateChecks   *int
	SweepIntervalSeconds *int

	NotifyStatsIntervalSeconds *int
	AverageWaitWindowSize      *int

	PingIntervalSeconds *int
}

var CFG = &Config{
	PollIntervalMillis:         flag.Int("poll-interval-millis", 2000, "Interval between two match attempts of a search."),
	MaxPollAttempts:            flag.Int("max-poll-attempts", 15, "Number of unsuccessful match attempts before a search times out."),
	ServerSidePolling:          flag.Bool("server-side-polling", true, "If true, server runs the match attempts of a search and clients only read the outcome. Otherwise every client poll is a match attempt."),
	TicketStaleSeconds:         flag.Int("ticket-stale-seconds", 60, "A waiting ticket older than this is viewed as orphaned and can be removed from the queue."),
	PresenceTtlSeconds:         flag.Int("presence-ttl-seconds", 30, "A candidate whose last heartbeat is older than this is viewed as unreachable and never matched."),
	BillingIntervalSecs:        flag.Int("billing-interval-seconds", 60, "Interval of wallet debits during a call."),
	MaxCandidateChecks:         flag.Int("max-candidate-checks", 5, "Max number of candidates a single match attempt looks at before giving up."),
	SweepIntervalSeconds:       flag.Int("sweep-interval-seconds", 30, "Interval to sweep orphaned tickets from the queue."),
	NotifyStatsIntervalSeconds: flag.Int("notify-stats-interval-seconds", 5, "Interval to notify stats to client."),
	AverageWaitWindowSize:      flag.Int("average-wait-window-size", 50, "The size of sliding window for calculating average wait time of a search."),
	PingIntervalSeconds:        flag.Int("ping-interval-seconds", 30, "Send pings to websocket peer with this interval."),
}

func ProvideConfig() *Config {
	return CFG
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(*c.PollIntervalMillis) * time.Millisecond
}

// SearchTimeout is the wall clock budget of a search, checked on every poll.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(*c.MaxPollAttempts) * c.PollInterval()
}

func (c *Config) TicketStalePeriod() time.Duration {
	return time.Duration(*c.TicketStaleSeconds) * time.Second
}

func (c *Config) PresenceTtl() time.Duration {
	return time.Duration(*c.PresenceTtlSeconds) * time.Second
}

func (c *Config) BillingInterval() time.Duration {
	return time.Duration(*c.BillingIntervalSecs) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(*c.SweepIntervalSeconds) * time.Second
}

func (c *Config) NotifyStatsInterval() time.Duration {
	return time.Duration(*c.NotifyStatsIntervalSeconds) * time.Second
}

func (c *Config) PingInterval() time.Duration {
	return time.Duration(*c.PingIntervalSeconds) * time.Second
}
