package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const envBasaltOperatorsDir = "BASALT_OPERATORS_DIR"

func resolveOperatorPath(operatorFlag string, operatorsPath string, stderr io.Writer) (string, error) {
	operatorFlag = strings.TrimSpace(operatorFlag)
	if operatorFlag != "" {
		return filepath.Clean(operatorFlag), nil
	}

	operatorsDir := strings.TrimSpace(operatorsPath)
	if operatorsDir == "" {
		operatorsDir = strings.TrimSpace(os.Getenv(envBasaltOperatorsDir))
	}
	if operatorsDir == "" {
		return "", fmt.Errorf("--operator or --operators-path is required unless %s is set", envBasaltOperatorsDir)
	}

	operators, err := discoverPWFOperators(operatorsDir)
	if err != nil {
		return "", err
	}
	switch len(operators) {
	case 0:
		return "", fmt.Errorf("no .pwf operators found in %s", operatorsDir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using operator %s\n", operators[0])
		return operators[0], nil
	default:
		return "", fmt.Errorf("multiple operators found in %s; set --operator", operatorsDir)
	}
}

func discoverPWFOperators(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("operators directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("operators path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	operators := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".pwf") {
			continue
		}
		operators = append(operators, filepath.Join(dir, name))
	}
	sort.Strings(operators)
	return operators, nil
}
