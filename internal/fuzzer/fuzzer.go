// Package fuzzer drives the concurrent subdomain enumeration run: a fixed
// worker pool drains a bounded candidate queue, pushes every candidate
// through the probe pipeline, and accumulates outcomes in the shared result
// table while reporting discoveries live.
package fuzzer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"subhunt/internal/probe"
	"subhunt/internal/results"
)

// Mode selects which probe stages run for each candidate.
type Mode int

const (
	// ModeFull checks DNS first and probes HTTP for every resolving host.
	ModeFull Mode = iota
	// ModeDNSOnly stops after DNS resolution.
	ModeDNSOnly
	// ModeHTTPOnly skips the DNS gate and probes HTTP directly.
	ModeHTTPOnly
)

func (m Mode) String() string {
	switch m {
	case ModeDNSOnly:
		return "DNS Only"
	case ModeHTTPOnly:
		return "HTTP Only"
	default:
		return "Full"
	}
}

// Prober is the set of network checks the pipeline needs. probe.Prober
// satisfies it; tests substitute a deterministic fake.
type Prober interface {
	Exists(ctx context.Context, host string) bool
	IP(ctx context.Context, host string) (string, bool)
	HTTP(ctx context.Context, host string) (probe.HTTPResult, bool)
	ContentSize(ctx context.Context, host, protocol string) (int64, bool)
}

// Reporter receives progress and discovery events. Calls arrive strictly
// serialized under the engine's output lock.
type Reporter interface {
	Progress(done, total int)
	Found(host string, e results.Entry)
	Update(host string, e results.Entry)
}

// Config holds the run parameters for one enumeration.
type Config struct {
	Domain  string
	Workers int
	Mode    Mode
}

// Stats is a point-in-time snapshot of run progress.
type Stats struct {
	Domain    string    `json:"domain"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Found     int       `json:"found"`
	StartedAt time.Time `json:"started_at"`
}

// Fuzzer owns the lifecycle of a single enumeration run.
type Fuzzer struct {
	cfg      Config
	prober   Prober
	reporter Reporter
	log      *slog.Logger

	interval  int64
	total     int
	processed atomic.Int64
	start     time.Time

	// mu serializes table writes with reporter output. It is held only
	// across the synchronous store+print section, never across a network
	// call.
	mu    sync.Mutex
	table results.Table
}

// task travels through the candidate queue. A stop task is the shutdown
// sentinel telling one worker to exit.
type task struct {
	label string
	stop  bool
}

// New creates a Fuzzer. Workers below 1 are clamped to 1.
func New(cfg Config, p Prober, r Reporter, log *slog.Logger) *Fuzzer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	interval := int64(cfg.Workers / 10)
	if interval < 1 {
		interval = 1
	}
	return &Fuzzer{
		cfg:      cfg,
		prober:   p,
		reporter: r,
		log:      log,
		interval: interval,
		table:    make(results.Table),
	}
}

// Run enumerates every candidate label against the target domain and returns
// the result table. On cancellation the table holds whatever completed so
// far and the context error is returned alongside it.
func (f *Fuzzer) Run(ctx context.Context, words []string) (results.Table, error) {
	// Stats may already be polled by the API server, so these writes go
	// through the same lock.
	f.mu.Lock()
	f.total = len(words)
	f.start = time.Now()
	f.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan task, 2*f.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < f.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker(runCtx, queue)
		}()
	}

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		for _, w := range words {
			select {
			case queue <- task{label: w}:
			case <-runCtx.Done():
				return
			}
		}
		// One sentinel per worker, so every worker observes exactly one
		// and none blocks on an empty queue.
		for i := 0; i < f.cfg.Workers; i++ {
			select {
			case queue <- task{stop: true}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	wg.Wait()
	cancel()
	<-feedDone

	f.log.Debug("run finished",
		"domain", f.cfg.Domain,
		"processed", f.processed.Load(),
		"found", len(f.table),
		"elapsed", time.Since(f.start))

	return f.table, ctx.Err()
}

// Snapshot returns a copy of the table as it stands.
func (f *Fuzzer) Snapshot() results.Table {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(results.Table, len(f.table))
	for h, e := range f.table {
		out[h] = e
	}
	return out
}

// Stats returns the current run counters.
func (f *Fuzzer) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Domain:    f.cfg.Domain,
		Total:     f.total,
		Processed: int(f.processed.Load()),
		Found:     len(f.table),
		StartedAt: f.start,
	}
}

func (f *Fuzzer) worker(ctx context.Context, queue <-chan task) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-queue:
			if t.stop {
				return
			}
			f.process(ctx, t.label)
		}
	}
}

// process runs one candidate through the pipeline. A misbehaving target must
// never abort the run, so anything unexpected is swallowed and the candidate
// counts as a non-match.
func (f *Fuzzer) process(ctx context.Context, label string) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Debug("candidate pipeline panic", "label", label, "panic", r)
		}
	}()

	host := label + "." + f.cfg.Domain
	n := f.processed.Add(1)
	if n == 1 || n%f.interval == 0 {
		f.mu.Lock()
		f.reporter.Progress(int(n), f.total)
		f.mu.Unlock()
	}

	switch f.cfg.Mode {
	case ModeHTTPOnly:
		res, ok := f.prober.HTTP(ctx, host)
		if !ok {
			return
		}
		ip, _ := f.prober.IP(ctx, host)
		f.storeHTTP(ctx, host, ip, res)

	default:
		if !f.prober.Exists(ctx, host) {
			return
		}
		ip, _ := f.prober.IP(ctx, host)
		if f.cfg.Mode == ModeDNSOnly {
			f.store(host, results.Entry{IP: ip})
			return
		}
		if res, ok := f.prober.HTTP(ctx, host); ok {
			f.storeHTTP(ctx, host, ip, res)
		} else {
			// DNS resolved but no reachable service: recorded as a
			// DNS-only match.
			f.store(host, results.Entry{IP: ip})
		}
	}
}

// storeHTTP records an HTTP hit and, when the response carried no
// Content-Length, enriches the entry with a follow-up size fetch. Both
// writes for a host come from the same worker, so they are ordered.
func (f *Fuzzer) storeHTTP(ctx context.Context, host, ip string, res probe.HTTPResult) {
	entry := results.Entry{
		Protocol: res.Protocol,
		Status:   res.Status,
		IP:       ip,
		Size:     res.Size,
	}
	f.store(host, entry)

	if entry.Size != nil {
		return
	}
	if n, ok := f.prober.ContentSize(ctx, host, res.Protocol); ok {
		size := n
		entry.Size = &size
		f.mu.Lock()
		f.table[host] = entry
		f.reporter.Update(host, entry)
		f.mu.Unlock()
	}
}

func (f *Fuzzer) store(host string, e results.Entry) {
	f.mu.Lock()
	f.table[host] = e
	f.reporter.Found(host, e)
	f.mu.Unlock()
}
