package fuzzer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"subhunt/internal/probe"
	"subhunt/internal/results"
)

// fakeProber resolves and probes from fixed maps keyed by full host name.
type fakeProber struct {
	dns   map[string]string           // host -> IP; presence means it resolves
	http  map[string]probe.HTTPResult // host -> HTTP outcome
	sizes map[string]int64            // host -> body size for the follow-up fetch

	httpCalls atomic.Int64
	sizeCalls atomic.Int64

	// onExists, when set, observes every DNS check; used to trigger
	// cancellation mid-run.
	onExists func()
}

func (f *fakeProber) Exists(ctx context.Context, host string) bool {
	if f.onExists != nil {
		f.onExists()
	}
	_, ok := f.dns[host]
	return ok
}

func (f *fakeProber) IP(ctx context.Context, host string) (string, bool) {
	ip, ok := f.dns[host]
	return ip, ok
}

func (f *fakeProber) HTTP(ctx context.Context, host string) (probe.HTTPResult, bool) {
	f.httpCalls.Add(1)
	res, ok := f.http[host]
	return res, ok
}

func (f *fakeProber) ContentSize(ctx context.Context, host, protocol string) (int64, bool) {
	f.sizeCalls.Add(1)
	n, ok := f.sizes[host]
	return n, ok
}

// recordingReporter captures the event stream for assertions.
type recordingReporter struct {
	mu       sync.Mutex
	found    map[string]results.Entry
	updates  map[string]results.Entry
	order    []string
	progress int
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		found:   make(map[string]results.Entry),
		updates: make(map[string]results.Entry),
	}
}

func (r *recordingReporter) Progress(done, total int) {
	r.mu.Lock()
	r.progress++
	r.mu.Unlock()
}

func (r *recordingReporter) Found(host string, e results.Entry) {
	r.mu.Lock()
	r.found[host] = e
	r.order = append(r.order, host)
	r.mu.Unlock()
}

func (r *recordingReporter) Update(host string, e results.Entry) {
	r.mu.Lock()
	r.updates[host] = e
	r.mu.Unlock()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sizep(n int64) *int64 { return &n }

func TestRunFullMode(t *testing.T) {
	p := &fakeProber{
		dns: map[string]string{
			"www.example.com":  "1.2.3.4",
			"mail.example.com": "1.2.3.5",
		},
		http: map[string]probe.HTTPResult{
			"www.example.com": {Protocol: "https", Status: 200, Size: sizep(512)},
		},
	}
	r := newRecordingReporter()
	f := New(Config{Domain: "example.com", Workers: 4, Mode: ModeFull}, p, r, discard())

	table, err := f.Run(context.Background(), []string{"www", "mail", "ghost"})
	require.NoError(t, err)

	require.Len(t, table, 2)
	require.Equal(t, results.Entry{Protocol: "https", Status: 200, IP: "1.2.3.4", Size: sizep(512)},
		table["www.example.com"])
	// Resolves but no reachable service: kept as a DNS-only match.
	require.Equal(t, results.Entry{IP: "1.2.3.5"}, table["mail.example.com"])
	require.NotContains(t, table, "ghost.example.com")

	require.Equal(t, int64(3), f.processed.Load())
	require.GreaterOrEqual(t, r.progress, 1)
}

func TestRunDNSOnlyMode(t *testing.T) {
	p := &fakeProber{
		dns: map[string]string{"www.example.com": "1.2.3.4"},
		http: map[string]probe.HTTPResult{
			"www.example.com": {Protocol: "https", Status: 200},
		},
	}
	r := newRecordingReporter()
	f := New(Config{Domain: "example.com", Workers: 2, Mode: ModeDNSOnly}, p, r, discard())

	table, err := f.Run(context.Background(), []string{"www", "nope"})
	require.NoError(t, err)

	require.Equal(t, results.Table{"www.example.com": {IP: "1.2.3.4"}}, table)
	require.Zero(t, p.httpCalls.Load(), "DNS-only mode must not probe HTTP")
	require.Zero(t, p.sizeCalls.Load())
}

func TestRunHTTPOnlyMode(t *testing.T) {
	p := &fakeProber{
		dns: map[string]string{"app.example.com": "1.2.3.4"},
		http: map[string]probe.HTTPResult{
			"app.example.com": {Protocol: "https", Status: 200, Size: sizep(512)},
		},
	}
	r := newRecordingReporter()
	f := New(Config{Domain: "example.com", Workers: 2, Mode: ModeHTTPOnly}, p, r, discard())

	table, err := f.Run(context.Background(), []string{"app", "miss"})
	require.NoError(t, err)

	entry := table["app.example.com"]
	require.Equal(t, "https", entry.Protocol)
	require.Equal(t, int64(512), *entry.Size)
	// The header already answered the size question.
	require.Zero(t, p.sizeCalls.Load(), "no follow-up fetch when Content-Length was present")
	require.Empty(t, r.updates)
}

func TestRunSizeEnrichmentUpdatesInPlace(t *testing.T) {
	p := &fakeProber{
		dns: map[string]string{"old.example.com": "1.2.3.4"},
		http: map[string]probe.HTTPResult{
			"old.example.com": {Protocol: "http", Status: 404},
		},
		sizes: map[string]int64{"old.example.com": 37},
	}
	r := newRecordingReporter()
	f := New(Config{Domain: "example.com", Workers: 1, Mode: ModeFull}, p, r, discard())

	table, err := f.Run(context.Background(), []string{"old"})
	require.NoError(t, err)

	// Provisional entry first, enriched entry after the follow-up fetch.
	require.Nil(t, r.found["old.example.com"].Size)
	require.Equal(t, int64(37), *r.updates["old.example.com"].Size)
	require.Equal(t, int64(37), *table["old.example.com"].Size)
	require.Equal(t, int64(1), p.sizeCalls.Load())
}

func TestRunUnusualLabels(t *testing.T) {
	p := &fakeProber{dns: map[string]string{}}
	r := newRecordingReporter()
	f := New(Config{Domain: "example.com", Workers: 3, Mode: ModeFull}, p, r, discard())

	words := []string{"a", "xn--caf-dma", "very-long-label-with-many-characters", "b"}
	table, err := f.Run(context.Background(), words)
	require.NoError(t, err)
	require.Empty(t, table)
	require.Equal(t, int64(len(words)), f.processed.Load(), "every candidate must be processed")
}

func TestRunCancellationKeepsPartialResults(t *testing.T) {
	words := make([]string, 200)
	dns := make(map[string]string, len(words))
	for i := range words {
		words[i] = fmt.Sprintf("h%03d", i)
		dns[words[i]+".example.com"] = "1.2.3.4"
	}

	ctx, cancel := context.WithCancel(context.Background())
	var seen atomic.Int64
	p := &fakeProber{
		dns: dns,
		onExists: func() {
			if seen.Add(1) == 20 {
				cancel()
			}
		},
	}
	r := newRecordingReporter()
	f := New(Config{Domain: "example.com", Workers: 4, Mode: ModeDNSOnly}, p, r, discard())

	table, err := f.Run(ctx, words)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, len(table), len(words), "cancellation must stop before the full list")
	for host, e := range table {
		require.Equal(t, "1.2.3.4", e.IP, "partial results must still be complete entries: %s", host)
	}
	require.Equal(t, len(table), len(r.found))
}

func TestRunResultsIndependentOfWorkerCount(t *testing.T) {
	words := make([]string, 60)
	dns := make(map[string]string)
	http := make(map[string]probe.HTTPResult)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
		if i%2 == 0 {
			host := words[i] + ".example.com"
			dns[host] = fmt.Sprintf("10.0.0.%d", i)
			if i%4 == 0 {
				http[host] = probe.HTTPResult{Protocol: "https", Status: 200, Size: sizep(int64(i))}
			}
		}
	}

	run := func(workers int) results.Table {
		p := &fakeProber{dns: dns, http: http}
		f := New(Config{Domain: "example.com", Workers: workers, Mode: ModeFull},
			p, newRecordingReporter(), discard())
		table, err := f.Run(context.Background(), words)
		require.NoError(t, err)
		return table
	}

	require.Equal(t, run(1), run(50), "worker count must not change the outcome")
}

func TestWorkersClampedToOne(t *testing.T) {
	f := New(Config{Domain: "example.com", Workers: 0, Mode: ModeDNSOnly},
		&fakeProber{dns: map[string]string{}}, newRecordingReporter(), discard())
	require.Equal(t, 1, f.cfg.Workers)

	_, err := f.Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, int64(2), f.processed.Load())
}

func TestStatsPolledDuringRun(t *testing.T) {
	words := make([]string, 150)
	dns := make(map[string]string, len(words))
	for i := range words {
		words[i] = fmt.Sprintf("h%03d", i)
		dns[words[i]+".example.com"] = "1.2.3.4"
	}
	p := &fakeProber{dns: dns}
	f := New(Config{Domain: "example.com", Workers: 8, Mode: ModeDNSOnly},
		p, newRecordingReporter(), discard())

	// Poll the way the API server does: concurrently with the run, from
	// another goroutine.
	done := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-done:
				return
			default:
			}
			st := f.Stats()
			if st.Processed > len(words) {
				t.Errorf("processed %d exceeds candidate count %d", st.Processed, len(words))
				return
			}
			if st.Total != 0 && st.Total != len(words) {
				t.Errorf("total = %d, want 0 or %d", st.Total, len(words))
				return
			}
			_ = f.Snapshot()
		}
	}()

	table, err := f.Run(context.Background(), words)
	close(done)
	<-polled
	require.NoError(t, err)
	require.Len(t, table, len(words))

	st := f.Stats()
	require.Equal(t, len(words), st.Total)
	require.Equal(t, len(words), st.Processed)
	require.False(t, st.StartedAt.IsZero())
}

func TestStatsAndSnapshot(t *testing.T) {
	p := &fakeProber{dns: map[string]string{"www.example.com": "1.2.3.4"}}
	f := New(Config{Domain: "example.com", Workers: 2, Mode: ModeDNSOnly},
		p, newRecordingReporter(), discard())

	_, err := f.Run(context.Background(), []string{"www", "none"})
	require.NoError(t, err)

	st := f.Stats()
	require.Equal(t, "example.com", st.Domain)
	require.Equal(t, 2, st.Total)
	require.Equal(t, 2, st.Processed)
	require.Equal(t, 1, st.Found)

	snap := f.Snapshot()
	require.Equal(t, results.Table{"www.example.com": {IP: "1.2.3.4"}}, snap)
	// The snapshot is a copy; mutating it must not touch the live table.
	snap["bogus.example.com"] = results.Entry{}
	require.Len(t, f.Snapshot(), 1)
}
