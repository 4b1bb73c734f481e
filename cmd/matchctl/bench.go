package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var sampleResumes = []string{
	"Experienced Python developer with Django, Flask and PostgreSQL. 5 years of experience building REST APIs.",
	"Registered nurse with ICU and emergency room background, BLS and ACLS certified.",
	"Java engineer, Spring Boot, Kafka and microservices on Kubernetes.",
	"Data analyst skilled in SQL, Excel, Tableau and stakeholder reporting.",
	"Retail store manager, inventory control, scheduling and customer service.",
	"Machine learning engineer, PyTorch, NLP, transformers and model deployment.",
	"Truck driver with CDL class A license and clean driving record.",
	"Accountant with CPA, financial statements, audits and tax preparation.",
}

type benchOptions struct {
	url         string
	concurrency int
	duration    time.Duration
	requests    int
	strategies  []string
	resumeDir   string
}

func newBenchCmd() *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test a running matcher over HTTP",
		Long:  "bench sends POST /match/{strategy} requests from concurrent workers, rotating strategies and resumes, and prints latency percentiles per strategy.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.strategies) == 0 {
				return errors.New("at least one strategy is required")
			}
			if opts.concurrency < 1 {
				return errors.New("--concurrency must be at least 1")
			}
			resumes := sampleResumes
			if opts.resumeDir != "" {
				var err error
				if resumes, err = loadResumes(opts.resumeDir); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			client := &http.Client{
				Timeout:   2 * time.Minute,
				Transport: &http.Transport{MaxIdleConnsPerHost: opts.concurrency},
			}
			report, err := runBench(ctx, client, opts, resumes)
			if err != nil {
				return err
			}
			report.write(cmd.OutOrStdout())
			if report.total == 0 {
				return fmt.Errorf("no requests completed against %s", opts.url)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "http://localhost:5000", "Base URL of the matcher")
	f.IntVar(&opts.concurrency, "concurrency", 4, "Concurrent workers")
	f.DurationVar(&opts.duration, "duration", 30*time.Second, "How long to run (0 runs until --requests are sent)")
	f.IntVar(&opts.requests, "requests", 0, "Stop after this many requests (0 for no limit)")
	f.StringSliceVar(&opts.strategies, "strategies", []string{"tfidf", "bm25"}, "Strategies to exercise")
	f.StringVar(&opts.resumeDir, "resumes", "", "Directory of .txt resumes (built-in samples when empty)")
	return cmd
}

func loadResumes(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)
	var out []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			out = append(out, text)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no non-empty .txt files in %s", dir)
	}
	return out, nil
}

type sample struct {
	strategy string
	latency  time.Duration
	status   int
	err      error
}

type strategyResult struct {
	ok        int
	failed    int
	latencies []time.Duration
}

type benchReport struct {
	strategies []string
	results    map[string]*strategyResult
	codes      map[int]int
	transport  int
	total      int
	elapsed    time.Duration
}

// runBench stops when ctx is done or opts.requests have been sent. Request
// i uses strategy i mod len(strategies), so every strategy sees every
// resume.
func runBench(ctx context.Context, client *http.Client, opts *benchOptions, resumes []string) (*benchReport, error) {
	if opts.duration <= 0 && opts.requests <= 0 {
		return nil, errors.New("set --duration or --requests")
	}
	base := strings.TrimRight(opts.url, "/")
	samples := make(chan sample, opts.concurrency*4)
	var next atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for range opts.concurrency {
		g.Go(func() error {
			for gctx.Err() == nil {
				i := int(next.Add(1) - 1)
				if opts.requests > 0 && i >= opts.requests {
					return nil
				}
				strategy := opts.strategies[i%len(opts.strategies)]
				resume := resumes[(i/len(opts.strategies))%len(resumes)]

				start := time.Now()
				status, err := postMatch(gctx, client, base, strategy, resume)
				if gctx.Err() != nil {
					return nil
				}
				samples <- sample{strategy, time.Since(start), status, err}
			}
			return nil
		})
	}

	report := &benchReport{
		strategies: opts.strategies,
		results:    make(map[string]*strategyResult),
		codes:      make(map[int]int),
	}
	for _, s := range opts.strategies {
		report.results[s] = &strategyResult{}
	}
	done := make(chan struct{})
	start := time.Now()
	go func() {
		defer close(done)
		for s := range samples {
			report.add(s)
		}
	}()

	err := g.Wait()
	close(samples)
	<-done
	report.elapsed = time.Since(start)
	return report, err
}

func postMatch(ctx context.Context, client *http.Client, base, strategy, resume string) (int, error) {
	body, _ := json.Marshal(map[string]string{"resume_text": resume})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/match/"+strategy, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (r *benchReport) add(s sample) {
	r.total++
	res := r.results[s.strategy]
	if s.err != nil {
		r.transport++
		res.failed++
		return
	}
	r.codes[s.status]++
	if s.status/100 != 2 {
		res.failed++
		return
	}
	res.ok++
	res.latencies = append(res.latencies, s.latency)
}

// percentile uses the nearest-rank method on sorted latencies.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func (r *benchReport) write(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tOK\tFAILED\tP50\tP95\tP99\tMAX")
	for _, name := range r.strategies {
		res := r.results[name]
		lat := slices.Clone(res.latencies)
		slices.Sort(lat)
		var maxLat time.Duration
		if len(lat) > 0 {
			maxLat = lat[len(lat)-1]
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n", name, res.ok, res.failed,
			percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), maxLat)
	}
	tw.Flush()

	codes := make([]int, 0, len(r.codes))
	for c := range r.codes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	parts := make([]string, 0, len(codes)+1)
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d=%d", c, r.codes[c]))
	}
	if r.transport > 0 {
		parts = append(parts, fmt.Sprintf("transport_errors=%d", r.transport))
	}
	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(r.total) / r.elapsed.Seconds()
	}
	fmt.Fprintf(w, "\n%d requests in %s (%.1f req/s); %s\n", r.total, r.elapsed.Round(time.Millisecond), rate, strings.Join(parts, " "))
}
