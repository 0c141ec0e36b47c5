package cql

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cqlwire/cqlwire/cmd/util"
	"github.com/cqlwire/cqlwire/driver/frame"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for CQL clusters",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. query,options)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfResult bundles the throughput numbers with the latency distribution
type perfResult struct {
	bench     testing.BenchmarkResult
	latencies gometrics.Histogram
}

func runPerf(cmd *cobra.Command, _ []string) error {
	defer driverClient.Close()

	fmt.Println("Performance testing tool for CQL clusters")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := cmd.Context()
	results := make(map[string]perfResult)

	measure := func(name string, op func() error) perfResult {
		latencies := gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))

		bench := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					start := time.Now()
					if err := op(); err != nil {
						log.Printf("(%s) - error: %v\n", name, err)
						continue
					}
					latencies.Update(time.Since(start).Nanoseconds())
				}
			})
		})

		result := perfResult{bench: bench, latencies: latencies}
		results[name] = result
		printResult(name, result)
		return result
	}

	measure("query", func() error {
		result, err := driverClient.Query(ctx, nil, "SELECT now() FROM system.local", frame.One)
		if err != nil {
			return err
		}
		result.Close()
		return nil
	})

	measure("options", func() error {
		_, err := driverClient.Options(ctx)
		return err
	})

	if !shouldSkip("execute") {
		id, err := driverClient.Prepare(ctx, "SELECT now() FROM system.local WHERE key = ?")
		if err != nil {
			return fmt.Errorf("failed to prepare the execute benchmark statement: %v", err)
		}

		measure("execute", func() error {
			result, err := driverClient.ExecutePrepared(ctx, nil, id, [][]byte{[]byte("local")}, frame.One)
			if err != nil {
				return err
			}
			result.Close()
			return nil
		})
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints one benchmark's throughput and latency percentiles
func printResult(name string, result perfResult) {
	if result.bench.N == 0 {
		fmt.Printf("%-10s skipped\n", name)
		return
	}

	p := result.latencies.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-10s %10d ops %12.0f ns/op  p50=%s p95=%s p99=%s\n",
		name,
		result.bench.N,
		float64(result.bench.T.Nanoseconds())/float64(result.bench.N),
		time.Duration(int64(p[0])),
		time.Duration(int64(p[1])),
		time.Duration(int64(p[2])),
	)
}

// writeResultsToCSV exports all benchmark results to a CSV file
func writeResultsToCSV(path string, results map[string]perfResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"benchmark", "ops", "ns_per_op", "p50_ns", "p95_ns", "p99_ns"}); err != nil {
		return err
	}

	for name, result := range results {
		if result.bench.N == 0 {
			continue
		}
		p := result.latencies.Percentiles([]float64{0.5, 0.95, 0.99})
		record := []string{
			name,
			strconv.Itoa(result.bench.N),
			strconv.FormatFloat(float64(result.bench.T.Nanoseconds())/float64(result.bench.N), 'f', 0, 64),
			strconv.FormatFloat(p[0], 'f', 0, 64),
			strconv.FormatFloat(p[1], 'f', 0, 64),
			strconv.FormatFloat(p[2], 'f', 0, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	return nil
}
