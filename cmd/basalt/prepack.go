package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/basalt/internal/logger"
	"github.com/samcharles93/basalt/internal/qop"
	"github.com/samcharles93/basalt/pkg/quant"
)

// operatorSpec is the JSON description consumed by `basalt prepack`.
// Weights are signed quantized values in row-major OI (linear) or OHWI
// (conv2d) order; prepack rebases them into the packed unsigned domain.
type operatorSpec struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Scheme         string `json:"scheme"`
	InputChannels  int    `json:"input_channels"`
	OutputChannels int    `json:"output_channels"`

	Kernel  []int `json:"kernel,omitempty"`
	Stride  []int `json:"stride,omitempty"`
	Padding []int `json:"padding,omitempty"`

	WeightScale      float32   `json:"weight_scale,omitempty"`
	WeightZeroPoint  int32     `json:"weight_zero_point,omitempty"`
	WeightScales     []float32 `json:"weight_scales,omitempty"`
	WeightZeroPoints []int32   `json:"weight_zero_points,omitempty"`

	Weights []int32   `json:"weights"`
	Bias    []float32 `json:"bias,omitempty"`

	OutputScale     float32 `json:"output_scale"`
	OutputZeroPoint int32   `json:"output_zero_point"`
	Activation      string  `json:"activation,omitempty"`
}

func prepackCmd() *cli.Command {
	var (
		specPath string
		outPath  string
	)

	return &cli.Command{
		Name:  "prepack",
		Usage: "Pack a quantized operator description into a .pwf file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "spec",
				Aliases:     []string{"s"},
				Usage:       "path to operator description JSON",
				Destination: &specPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "out",
				Usage:       "output .pwf path (default: description name with .pwf)",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			data, err := os.ReadFile(specPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read description: %v", err), 1)
			}
			var desc operatorSpec
			if err := json.Unmarshal(data, &desc); err != nil {
				return cli.Exit(fmt.Sprintf("error: parse description: %v", err), 1)
			}

			op, err := buildOperator(desc)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			out := outPath
			if out == "" {
				out = strings.TrimSuffix(specPath, ".json") + ".pwf"
			}

			start := time.Now()
			if err := qop.Save(out, op); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", out, err), 1)
			}
			log.Info("operator packed",
				"name", op.Info().Name,
				"kind", op.Info().Kind,
				"out", out,
				"elapsed", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func buildOperator(desc operatorSpec) (qop.Operator, error) {
	w, err := buildWeightParams(desc)
	if err != nil {
		return nil, err
	}
	weights, err := narrowWeights(desc.Weights)
	if err != nil {
		return nil, err
	}
	activation, err := quant.ParseActivation(desc.Activation)
	if err != nil {
		return nil, err
	}
	out := qop.OutputParams{
		Scale:      desc.OutputScale,
		ZeroPoint:  desc.OutputZeroPoint,
		Activation: activation,
	}

	switch desc.Kind {
	case "linear":
		return qop.PrepackLinear(desc.Name, w, weights, desc.InputChannels, desc.Bias, out)
	case "conv2d":
		geom, err := buildGeometry(desc)
		if err != nil {
			return nil, err
		}
		return qop.PrepackConv(desc.Name, w, weights, geom, desc.Bias, out)
	default:
		return nil, fmt.Errorf("unsupported operator kind %q", desc.Kind)
	}
}

func buildWeightParams(desc operatorSpec) (quant.Quantized, error) {
	scheme, err := quant.ParseScheme(desc.Scheme)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case quant.SchemePerTensorAffine:
		if desc.OutputChannels <= 0 {
			return nil, fmt.Errorf("output_channels must be positive")
		}
		return quant.NewPerTensor(desc.WeightScale, desc.WeightZeroPoint, desc.OutputChannels), nil
	case quant.SchemePerChannelAffine:
		return quant.NewPerChannel(desc.WeightScales, desc.WeightZeroPoints)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", desc.Scheme)
	}
}

func buildGeometry(desc operatorSpec) (qop.ConvGeometry, error) {
	geom := qop.ConvGeometry{
		InputChannels: desc.InputChannels,
		Stride:        [2]int{1, 1},
	}
	pair := func(name string, vals []int, dst *[2]int) error {
		switch len(vals) {
		case 0:
			return nil
		case 2:
			dst[0], dst[1] = vals[0], vals[1]
			return nil
		default:
			return fmt.Errorf("%s must be [height, width]", name)
		}
	}
	if err := pair("kernel", desc.Kernel, &geom.Kernel); err != nil {
		return geom, err
	}
	if err := pair("stride", desc.Stride, &geom.Stride); err != nil {
		return geom, err
	}
	if err := pair("padding", desc.Padding, &geom.Padding); err != nil {
		return geom, err
	}
	return geom, nil
}

func narrowWeights(values []int32) ([]int8, error) {
	weights := make([]int8, len(values))
	for i, v := range values {
		if v < -128 || v > 127 {
			return nil, fmt.Errorf("weight %d out of int8 range: %d", i, v)
		}
		weights[i] = int8(v)
	}
	return weights, nil
}
