package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/echoframe/internal/protocol/frame"
	"github.com/rs/zerolog"
)

var ErrBenchConfig = errors.New("client: invalid bench config")

type BenchConfig struct {
	Client      Config
	Connections int
	Messages    int
	PayloadSize int
	Command     frame.CommandID
}

// BenchReport is rendered by echoclient as YAML or JSON.
type BenchReport struct {
	Address         string  `yaml:"address" json:"address"`
	Connections     int     `yaml:"connections" json:"connections"`
	MessagesPerConn int     `yaml:"messages_per_conn" json:"messages_per_conn"`
	PayloadSize     int     `yaml:"payload_size" json:"payload_size"`
	Total           int64   `yaml:"total" json:"total"`
	Successes       int64   `yaml:"successes" json:"successes"`
	Failures        int64   `yaml:"failures" json:"failures"`
	ElapsedMS       float64 `yaml:"elapsed_ms" json:"elapsed_ms"`
	Throughput      float64 `yaml:"throughput_per_sec" json:"throughput_per_sec"`
	MinMS           float64 `yaml:"min_ms" json:"min_ms"`
	AvgMS           float64 `yaml:"avg_ms" json:"avg_ms"`
	MaxMS           float64 `yaml:"max_ms" json:"max_ms"`
	P50MS           float64 `yaml:"p50_ms" json:"p50_ms"`
	P99MS           float64 `yaml:"p99_ms" json:"p99_ms"`
	FirstError      string  `yaml:"first_error,omitempty" json:"first_error,omitempty"`
}

// Results collects outcomes from every bench worker. The driver owns it and
// hands the same instance to each worker.
type Results struct {
	mu        sync.Mutex
	latencies []time.Duration
	failures  int64
	firstErr  error
}

func (r *Results) Record(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies = append(r.latencies, rtt)
}

func (r *Results) RecordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	if r.firstErr == nil {
		r.firstErr = err
	}
}

// Report summarizes everything recorded so far.
func (r *Results) Report(elapsed time.Duration) BenchReport {
	r.mu.Lock()
	lat := make([]time.Duration, len(r.latencies))
	copy(lat, r.latencies)
	failures := r.failures
	firstErr := r.firstErr
	r.mu.Unlock()

	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	rep := BenchReport{
		Successes: int64(len(lat)),
		Failures:  failures,
		Total:     int64(len(lat)) + failures,
		ElapsedMS: ms(elapsed),
	}
	if firstErr != nil {
		rep.FirstError = firstErr.Error()
	}
	if elapsed > 0 {
		rep.Throughput = float64(rep.Successes) / elapsed.Seconds()
	}
	if len(lat) == 0 {
		return rep
	}
	var sum time.Duration
	for _, d := range lat {
		sum += d
	}
	rep.MinMS = ms(lat[0])
	rep.MaxMS = ms(lat[len(lat)-1])
	rep.AvgMS = ms(sum / time.Duration(len(lat)))
	rep.P50MS = ms(percentile(lat, 50))
	rep.P99MS = ms(percentile(lat, 99))
	return rep
}

// percentile uses nearest rank over a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Bench opens Connections concurrent connections and runs Messages echo round
// trips on each. Per-message failures are counted; a worker whose dial fails
// counts all of its messages as failed.
func Bench(ctx context.Context, cfg BenchConfig, logger zerolog.Logger) (BenchReport, error) {
	if cfg.Connections <= 0 || cfg.Messages <= 0 || cfg.PayloadSize < 0 || cfg.PayloadSize > frame.MaxPayloadLength {
		return BenchReport{}, fmt.Errorf("%w: connections=%d messages=%d payload=%d",
			ErrBenchConfig, cfg.Connections, cfg.Messages, cfg.PayloadSize)
	}
	if cfg.Command == 0 {
		cfg.Command = frame.CmdPublishMessage
	}
	c, err := New(cfg.Client, logger)
	if err != nil {
		return BenchReport{}, err
	}

	results := &Results{}
	payload := bytes.Repeat([]byte{'e'}, cfg.PayloadSize)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Connections; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			runWorker(ctx, c, cfg, payload, results, logger.With().Int("worker", worker).Logger())
		}(i)
	}
	wg.Wait()

	rep := results.Report(time.Since(start))
	rep.Address = cfg.Client.Address
	rep.Connections = cfg.Connections
	rep.MessagesPerConn = cfg.Messages
	rep.PayloadSize = cfg.PayloadSize
	logger.Info().
		Int64("successes", rep.Successes).
		Int64("failures", rep.Failures).
		Float64("p99_ms", rep.P99MS).
		Msg("bench finished")
	return rep, nil
}

func runWorker(ctx context.Context, c *Client, cfg BenchConfig, payload []byte, results *Results, logger zerolog.Logger) {
	conn, err := c.Dial(ctx)
	if err != nil {
		for i := 0; i < cfg.Messages; i++ {
			results.RecordFailure(err)
		}
		return
	}
	defer conn.Close()

	for i := 0; i < cfg.Messages; i++ {
		if ctx.Err() != nil {
			results.RecordFailure(ctx.Err())
			continue
		}
		_, rtt, err := conn.Echo(cfg.Command, payload)
		if err != nil {
			logger.Debug().Err(err).Int("message", i).Msg("bench echo failed")
			results.RecordFailure(err)
			// the stream position is unknown after a failure
			for i++; i < cfg.Messages; i++ {
				results.RecordFailure(err)
			}
			return
		}
		results.Record(rtt)
	}
}
