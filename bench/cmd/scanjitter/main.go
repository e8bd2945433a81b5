// Package main — bench/cmd/scanjitter/main.go
//
// Scan-cycle latency/jitter measurement tool.
//
// Runs N scan cycles of the Controller against the in-memory simulator
// I/O port, measuring each scan's wall-clock computation time with
// time.Now() immediately before and after Controller.Scan. Reports
// p50/p95/p99 scan duration and fails if p99 exceeds the configured
// scan period (spec §4.8 step 9, §5, §8 invariant 8: the scan executive
// is a real-time loop and an overrun is an observable failure mode, not
// just a log line).
//
// Output CSV columns: iteration, duration_us
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/lactplc/skidcore/internal/controller"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/simulator"
	"github.com/lactplc/skidcore/internal/tagstore"
)

func main() {
	iterations := flag.Int("iterations", 10000, "Number of scan cycles to measure")
	outputFile := flag.String("output", "scan_jitter_raw.csv", "Output CSV file path")
	flag.Parse()

	// Lock to OS thread to minimise scheduling jitter, matching the
	// posture the real scan thread takes after platform.Harden.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	store := tagstore.New(nil)
	tagstore.DeclareLACT(store)
	sp := setpoints.NewStore()
	sim := simulator.New()

	ctrl, err := controller.New(controller.Config{
		Store:     store,
		Setpoints: sp,
		IO:        sim,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "controller assembly: %v\n", err)
		os.Exit(1)
	}

	scanPeriod := time.Duration(sp.Current().ScanPeriodMS) * time.Millisecond

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"iteration", "duration_us"})

	const histBuckets = 100000 // microseconds, 0-100ms
	hist := make([]int, histBuckets)

	ctx := context.Background()
	var overruns int

	for i := 0; i < *iterations; i++ {
		start := time.Now()
		_ = ctrl.Scan(ctx)
		elapsed := time.Since(start)

		if elapsed > scanPeriod {
			overruns++
		}

		us := int(elapsed.Microseconds())
		if us < histBuckets {
			hist[us]++
		} else {
			hist[histBuckets-1]++
		}

		_ = w.Write([]string{strconv.Itoa(i), strconv.Itoa(us)})
	}

	p50, p95, p99 := computePercentiles(hist, *iterations)

	fmt.Printf("Scan Jitter Results (%d iterations, scan_period=%s)\n", *iterations, scanPeriod)
	fmt.Printf("  Overruns: %d/%d (%.2f%%)\n", overruns, *iterations, float64(overruns)/float64(*iterations)*100)
	fmt.Printf("  p50: %dµs\n", p50)
	fmt.Printf("  p95: %dµs\n", p95)
	fmt.Printf("  p99: %dµs\n", p99)
	fmt.Printf("  Output: %s\n", *outputFile)

	if time.Duration(p99)*time.Microsecond > scanPeriod {
		fmt.Fprintf(os.Stderr, "FAIL: p99 %dµs exceeds scan period %s\n", p99, scanPeriod)
		os.Exit(1)
	}
}

func computePercentiles(hist []int, total int) (p50, p95, p99 int) {
	targets := []struct {
		pct float64
		out *int
	}{
		{0.50, &p50},
		{0.95, &p95},
		{0.99, &p99},
	}
	cumulative := 0
	ti := 0
	for i, count := range hist {
		cumulative += count
		for ti < len(targets) && float64(cumulative) >= targets[ti].pct*float64(total) {
			*targets[ti].out = i
			ti++
		}
		if ti == len(targets) {
			break
		}
	}
	return
}
