package main

import (
	"context"
	"testing"

	"github.com/kevindweb/loadgen/pkg/bench"
	"github.com/kevindweb/loadgen/pkg/store"
	"github.com/kevindweb/loadgen/pkg/util"
	"github.com/kevindweb/loadgen/pkg/workload"
)

func runBenchmark(b *testing.B, opts store.Options) {
	cfg := bench.DefaultConfig()
	cfg.Store = opts
	cfg.Concurrency = 10
	cfg.Count = 100
	cfg.Mix = workload.Mix{Set: 0.6, ZAdd: 0.3, ZRemRangeByRank: 0.1}

	report, err := bench.Run(context.Background(), cfg)
	if err != nil {
		b.Fatal(err)
	}
	if report.Total.Failures > 0 {
		b.Fatalf("%d operations failed: %v", report.Total.Failures, report.Total.Errors)
	}
}

func BenchmarkEndToEnd(b *testing.B) {
	for _, driver := range []string{store.DriverGoRedis, store.DriverRedigo} {
		b.Run(driver, func(b *testing.B) {
			opts, s, err := util.StartUniqueServer(driver)
			if err != nil {
				b.Fatal(err)
			}
			defer s.Stop()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				runBenchmark(b, opts)
			}
			b.StopTimer()
		})
	}
}
