package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/basalt/internal/logger"
	"github.com/samcharles93/basalt/internal/qop"
	"github.com/samcharles93/basalt/pkg/pwf"
)

func benchCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		batch      int64
		height     int64
		width      int64
		inputScale float64
	)

	flags := append([]cli.Flag{}, commonOperatorFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       2,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       10,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "batch size (rows for linear, images for conv2d)",
			Value:       64,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "height",
			Usage:       "input height (conv2d only)",
			Value:       32,
			Destination: &height,
		},
		&cli.Int64Flag{
			Name:        "width",
			Usage:       "input width (conv2d only)",
			Value:       32,
			Destination: &width,
		},
		&cli.Float64Flag{
			Name:        "input-scale",
			Usage:       "activation scale for the synthetic input",
			Value:       0.05,
			Destination: &inputScale,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark a packed operator on synthetic input",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyBenchConfig(cmd, LoadConfig(), &warmupRuns, &benchRuns)

			path, err := resolveOperatorPath(operatorPath, operatorsPath, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			stat, err := os.Stat(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %s: %v", path, err), 1)
			}

			loadStart := time.Now()
			op, err := qop.Load(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load %s: %v", path, err), 1)
			}
			loadDuration := time.Since(loadStart)
			info := op.Info()

			shape, err := benchShape(info, int(batch), int(height), int(width))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			elems := 1
			for _, d := range shape {
				elems *= d
			}

			// Deterministic input so runs are comparable.
			rng := rand.New(rand.NewSource(42))
			input := make([]uint8, elems)
			for i := range input {
				input[i] = uint8(rng.Intn(256))
			}
			in := qop.InputParams{Scale: float32(inputScale), ZeroPoint: 128}

			fmt.Println("=== Basalt Benchmark ===")
			fmt.Printf("Operator: %s (%s, %s)\n", info.Name, info.Kind, info.Scheme)
			fmt.Printf("File:     %s (%.1f KB)\n", path, float64(stat.Size())/1024)
			fmt.Printf("Input:    %v (%d codes)\n", shape, elems)
			fmt.Printf("CPUs:     %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Printf("Load:     %s\n", loadDuration.Round(time.Microsecond))
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d\n", benchRuns)
			fmt.Println()

			for i := range int(warmupRuns) {
				log.Debug("warmup run", "run", i+1)
				if _, _, err := op.Apply(input, shape, in); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			durations := make([]time.Duration, 0, benchRuns)
			for i := range int(benchRuns) {
				start := time.Now()
				_, _, err := op.Apply(input, shape, in)
				elapsed := time.Since(start)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				durations = append(durations, elapsed)
				fmt.Printf("run %2d: %s (%.1f Mcodes/s)\n", i+1,
					elapsed.Round(time.Microsecond), throughput(elems, elapsed))
			}

			sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
			best := durations[0]
			median := durations[len(durations)/2]
			var total time.Duration
			for _, d := range durations {
				total += d
			}
			mean := total / time.Duration(len(durations))

			fmt.Println()
			fmt.Printf("best:   %s (%.1f Mcodes/s)\n", best.Round(time.Microsecond), throughput(elems, best))
			fmt.Printf("median: %s (%.1f Mcodes/s)\n", median.Round(time.Microsecond), throughput(elems, median))
			fmt.Printf("mean:   %s (%.1f Mcodes/s)\n", mean.Round(time.Microsecond), throughput(elems, mean))
			return nil
		},
	}
}

func benchShape(info pwf.OperatorInfo, batch, height, width int) ([]int, error) {
	if batch <= 0 {
		return nil, fmt.Errorf("batch must be positive")
	}
	switch info.Kind {
	case "linear":
		return []int{batch, info.InputChannels}, nil
	case "conv2d":
		if height <= 0 || width <= 0 {
			return nil, fmt.Errorf("height and width must be positive")
		}
		return []int{batch, height, width, info.InputChannels}, nil
	default:
		return nil, fmt.Errorf("unsupported operator kind %q", info.Kind)
	}
}

func throughput(elems int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(elems) / d.Seconds() / 1e6
}
