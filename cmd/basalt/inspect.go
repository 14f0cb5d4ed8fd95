package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/basalt/pkg/pwf"
)

func inspectCmd() *cli.Command {
	var (
		showSections bool
		showParams   bool
		showJSON     bool
		paramsLimit  int
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a .pwf operator container",
		Flags: append(commonOperatorFlags(),
			&cli.BoolFlag{Name: "sections", Usage: "show section directory", Destination: &showSections},
			&cli.BoolFlag{Name: "params", Usage: "show per-channel parameters", Destination: &showParams},
			&cli.BoolFlag{Name: "json", Usage: "print raw operator info JSON", Destination: &showJSON},
			&cli.IntFlag{Name: "params-limit", Usage: "limit channel listing (0 = no limit)", Value: 16, Destination: &paramsLimit},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyOperatorConfig(cmd, LoadConfig())
			path, err := resolveOperatorPath(operatorPath, operatorsPath, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			f, err := pwf.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %s: %v", path, err), 1)
			}
			defer func() { _ = f.Close() }()

			fmt.Printf("File:     %s\n", path)
			fmt.Printf("Format:   PWF v%d.%d\n", f.Header.Major, f.Header.Minor)
			fmt.Printf("Flags:    0x%08x\n", f.Header.Flags)
			fmt.Printf("Sections: %d\n", len(f.Sections))

			if showSections {
				fmt.Println()
				for _, sec := range f.Sections {
					fmt.Printf("  %-14s v%-3d offset=%-8d size=%d\n",
						sectionName(pwf.SectionType(sec.Type)), sec.Version, sec.Offset, sec.Size)
				}
			}

			infoSec := f.Section(pwf.SectionOperatorInfo)
			if infoSec == nil {
				return cli.Exit("error: missing operator info section", 1)
			}
			if showJSON {
				fmt.Println()
				fmt.Println(string(f.SectionData(infoSec)))
			}
			info, err := pwf.ParseOperatorInfoSection(f.SectionData(infoSec))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: operator info: %v", err), 1)
			}

			fmt.Println()
			fmt.Printf("Operator: %s (%s, %s)\n", info.Name, info.Kind, info.Scheme)
			fmt.Printf("Channels: %d in, %d out\n", info.InputChannels, info.OutputChannels)
			if info.Kind == pwf.OpKindConv2D {
				fmt.Printf("Kernel:   %v stride=%v padding=%v\n", info.Kernel, info.Stride, info.Padding)
			}
			fmt.Printf("Output:   scale=%v zero_point=%d activation=%s\n",
				info.OutputScale, info.OutputZeroPoint, info.Activation)

			if showParams {
				paramsSec := f.Section(pwf.SectionChannelParams)
				if paramsSec == nil {
					return cli.Exit("error: missing channel params section", 1)
				}
				params, err := pwf.ParseChannelParamsSection(f.SectionData(paramsSec))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: channel params: %v", err), 1)
				}
				fmt.Println()
				limit := params.Channels()
				if paramsLimit > 0 && paramsLimit < limit {
					limit = paramsLimit
				}
				for c := 0; c < limit; c++ {
					fmt.Printf("  channel %-4d scale=%-12v zero_point=%d\n",
						c, params.Scales[c], params.ZeroPoints[c])
				}
				if limit < params.Channels() {
					fmt.Printf("  ... %d more channels\n", params.Channels()-limit)
				}
			}
			return nil
		},
	}
}

func sectionName(t pwf.SectionType) string {
	switch t {
	case pwf.SectionOperatorInfo:
		return "operator_info"
	case pwf.SectionChannelParams:
		return "channel_params"
	case pwf.SectionWeightData:
		return "weight_data"
	case pwf.SectionBiasData:
		return "bias_data"
	default:
		return fmt.Sprintf("unknown(0x%x)", uint32(t))
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
