// Command sisyphus runs one or more scenario files and reports their
// results.
//
// Grounded on the teacher's main.go entry point (app wiring + single run
// loop), replacing the gin HTTP server with a batch CLI driven by
// spf13/cobra, the way the rest of the example pack's CLIs (cli/cmd/root.go)
// structure their command trees.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sisyphus-test/sisyphus/internal/config"
	"github.com/sisyphus-test/sisyphus/internal/engine"
	"github.com/sisyphus-test/sisyphus/internal/reporter"
)

var (
	casePath  string
	casePaths []string
	format    string
	allureDir string
	htmlDir   string
	verbose   bool
	profile   string
)

func main() {
	root := &cobra.Command{
		Use:   "sisyphus",
		Short: "Run API test orchestration scenario files.",
		RunE:  run,
	}
	root.Flags().StringVar(&casePath, "case", "", "run a single scenario file")
	root.Flags().StringArrayVar(&casePaths, "cases", nil, "run multiple scenario files or directories (recursive)")
	root.Flags().StringVarP(&format, "output", "O", "text", "reporter: text|json|allure|html")
	root.Flags().StringVar(&allureDir, "allure-dir", "", "output directory for the allure reporter")
	root.Flags().StringVar(&htmlDir, "html-dir", "", "output directory for the html reporter")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "include debug logs")
	root.Flags().StringVar(&profile, "profile", "", "override active_profile")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("sisyphus: no scenario files given (use --case or --cases)")
	}

	cfg, cerr := config.Load(filepath.Join(".sisyphus", "config.yaml"))
	if cerr != nil {
		return cerr
	}

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	anyEngineError := false
	for _, path := range paths {
		cr := e.RunCase(context.Background(), path, engine.Options{ProfileOverride: profile})
		if err := reporter.Render(os.Stdout, cr, reporter.Format(format)); err != nil {
			return err
		}
		if cr.Error != nil {
			anyEngineError = true
		}
	}

	if anyEngineError {
		os.Exit(1)
	}
	return nil
}

func resolvePaths() ([]string, error) {
	var paths []string
	if casePath != "" {
		paths = append(paths, casePath)
	}
	for _, p := range casePaths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("sisyphus: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, p)
			continue
		}
		walkErr := filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".yaml" {
				paths = append(paths, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return paths, nil
}
