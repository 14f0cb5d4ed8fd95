package main

import "github.com/urfave/cli/v3"

var (
	operatorPath  string
	operatorsPath string
	logLevel      string
	logFormat     string
	debug         bool
)

func commonOperatorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "operator",
			Aliases:     []string{"o"},
			Usage:       "path to .pwf file",
			Destination: &operatorPath,
		},
		&cli.StringFlag{
			Name:        "operators-path",
			Aliases:     []string{"path"},
			Usage:       "path to directory containing .pwf operators",
			Destination: &operatorsPath,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
