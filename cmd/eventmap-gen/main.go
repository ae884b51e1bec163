// Command eventmap-gen generates payload registration code for a domain package.
//
// Usage:
//
//	go run github.com/getpup/pupkernel/cmd/eventmap-gen -dir examples/domain/branch
//
// Or with go generate, from inside the domain package:
//
//	//go:generate go run github.com/getpup/pupkernel/cmd/eventmap-gen
//
// The tool finds every exported type in the directory that declares an
// EventType() string or AggregateType() string method and writes:
//   - eventtypes.gen.go with RegisterEventTypes(r *eventtype.Registry) error
//   - eventtypes.gen_test.go exercising the generated function
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/getpup/pupkernel/es/eventmap"
)

func main() {
	defaults := eventmap.DefaultConfig()
	var (
		dir        = flag.String("dir", defaults.Dir, "Package directory containing payload types")
		outputFile = flag.String("filename", defaults.OutputFile, "Output filename")
		funcName   = flag.String("func", defaults.FuncName, "Name of the generated registration function")
		skipTests  = flag.Bool("skip-tests", false, "Do not generate the test file")
	)

	flag.Parse()

	absDir, err := filepath.Abs(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid directory: %v\n", err)
		os.Exit(1)
	}

	config := eventmap.Config{
		Dir:        absDir,
		OutputFile: *outputFile,
		FuncName:   *funcName,
		SkipTests:  *skipTests,
	}
	generator := eventmap.NewGenerator(&config)

	fmt.Printf("Discovering payload types in %s...\n", absDir)
	if err := generator.Discover(); err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering payload types: %v\n", err)
		os.Exit(1)
	}

	if err := generator.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully generated: %s (%d payload types)\n",
		filepath.Join(absDir, *outputFile), len(generator.Payloads()))
}
