package loadbot

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Summary aggregates the results of a swarm run.
type Summary struct {
	Bots       int           `yaml:"bots"`
	Failed     int           `yaml:"failed"`
	Hosted     int           `yaml:"hosted"`
	Joined     int           `yaml:"joined"`
	Matched    int           `yaml:"matched"`
	Ready      int           `yaml:"ready_at_end"`
	Ended      int           `yaml:"ended"`
	InputsSent int           `yaml:"inputs_sent"`
	Pings      int           `yaml:"pings"`
	Echoes     int           `yaml:"echoes"`
	RTTMedian  time.Duration `yaml:"rtt_median"`
	RTTMax     time.Duration `yaml:"rtt_max"`
}

// Swarm runs many bots against one server.
type Swarm struct {
	count   int
	stagger time.Duration
	cfg     Config
	logger  *zap.Logger
}

// NewSwarm creates a swarm of count bots, started stagger apart.
func NewSwarm(count int, stagger time.Duration, cfg Config, logger *zap.Logger) *Swarm {
	return &Swarm{count: count, stagger: stagger, cfg: cfg, logger: logger}
}

// Run starts every bot and waits for all of them to finish.
func (s *Swarm) Run(ctx context.Context) (Summary, error) {
	if s.count <= 0 {
		return Summary{}, ErrNoBots
	}

	results := make([]Result, s.count)
	errs := make([]error, s.count)
	var wg sync.WaitGroup
	for i := 0; i < s.count; i++ {
		if i > 0 && s.stagger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.stagger):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = New(i, s.cfg, s.logger).Run(ctx)
			if errs[i] != nil {
				s.logger.Warn("bot failed", zap.Int("bot", i), zap.Error(errs[i]))
			}
		}()
	}
	wg.Wait()

	return Summarize(results, errs), nil
}

// Summarize folds per-bot results into a Summary.
func Summarize(results []Result, errs []error) Summary {
	sum := Summary{Bots: len(results)}
	var rtts []time.Duration
	for i, r := range results {
		if i < len(errs) && errs[i] != nil {
			sum.Failed++
		}
		if r.Hosted {
			sum.Hosted++
		}
		if r.Joined {
			sum.Joined++
		}
		if r.Matches > 0 {
			sum.Matched++
		}
		if r.Ready {
			sum.Ready++
		}
		sum.Ended += r.Ended
		sum.InputsSent += r.InputsSent
		sum.Pings += r.Pings
		rtts = append(rtts, r.RTTs...)
	}
	sum.Echoes = len(rtts)
	if len(rtts) > 0 {
		sort.Slice(rtts, func(i, j int) bool { return rtts[i] < rtts[j] })
		sum.RTTMedian = rtts[len(rtts)/2]
		sum.RTTMax = rtts[len(rtts)-1]
	}
	return sum
}
