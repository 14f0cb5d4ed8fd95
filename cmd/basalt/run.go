package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/basalt/internal/logger"
	"github.com/samcharles93/basalt/internal/qop"
	"github.com/samcharles93/basalt/pkg/quant"
)

// runInput is the JSON payload consumed by `basalt run`. Input is float
// data in row-major order for the given shape.
type runInput struct {
	Input          []float32 `json:"input"`
	Shape          []int     `json:"shape"`
	InputScale     float32   `json:"input_scale"`
	InputZeroPoint int32     `json:"input_zero_point"`
}

type runOutput struct {
	Operator  string    `json:"operator"`
	Shape     []int     `json:"shape"`
	Codes     []uint8   `json:"codes"`
	Output    []float32 `json:"output"`
	ElapsedMS float64   `json:"elapsed_ms"`
}

func runCmd() *cli.Command {
	var inputPath string

	return &cli.Command{
		Name:  "run",
		Usage: "Run a packed operator on float input",
		Flags: append(commonOperatorFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "path to input JSON (- for stdin)",
				Destination: &inputPath,
				Required:    true,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyOperatorConfig(cmd, LoadConfig())

			path, err := resolveOperatorPath(operatorPath, operatorsPath, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var data []byte
			if inputPath == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(inputPath)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read input: %v", err), 1)
			}
			var in runInput
			if err := json.Unmarshal(data, &in); err != nil {
				return cli.Exit(fmt.Sprintf("error: parse input: %v", err), 1)
			}
			if !(in.InputScale > 0) || math.IsInf(float64(in.InputScale), 0) {
				return cli.Exit("error: input_scale must be positive and finite", 1)
			}

			log.Debug("loading operator", "path", path)
			op, err := qop.Load(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load %s: %v", path, err), 1)
			}
			info := op.Info()

			codes := make([]uint8, len(in.Input))
			for i, v := range in.Input {
				if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
					return cli.Exit(fmt.Sprintf("error: input value %d is not finite", i), 1)
				}
				codes[i] = quant.QuantizeUint8(in.InputScale, in.InputZeroPoint, v)
			}

			start := time.Now()
			out, shape, err := op.Apply(codes, in.Shape, qop.InputParams{
				Scale:     in.InputScale,
				ZeroPoint: in.InputZeroPoint,
			})
			elapsed := time.Since(start)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			output := make([]float32, len(out))
			for i, code := range out {
				output[i] = quant.DequantizeUint8(info.OutputScale, info.OutputZeroPoint, code)
			}

			return printJSON(runOutput{
				Operator:  info.Name,
				Shape:     shape,
				Codes:     out,
				Output:    output,
				ElapsedMS: float64(elapsed.Microseconds()) / 1000.0,
			})
		},
	}
}
