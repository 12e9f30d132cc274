// Command pipeflow is the CLI surface over pkg/pipeflow and pkg/catalog:
// inspect a project's registries and catalog, and run pipelines/systems.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/pipeflow/pipeflow/pkg/catalog"
	_ "github.com/pipeflow/pipeflow/pkg/catalog/badgerkv"
	_ "github.com/pipeflow/pipeflow/pkg/catalog/csvrows"
	_ "github.com/pipeflow/pipeflow/pkg/catalog/jsonmulti"
	_ "github.com/pipeflow/pipeflow/pkg/catalog/pgrows"
	"github.com/pipeflow/pipeflow/pkg/logging"
	"github.com/pipeflow/pipeflow/pkg/pipeflow"
	"github.com/pipeflow/pipeflow/pkg/ptr"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if os.Getenv(pipeflow.WorkerEnvVar) == "1" {
		if err := pipeflow.RunWorker(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "pipeflow worker:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "pipeflow:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pipeflow {new|catalog|registry|run|view|version} ...")
	}

	root, err := os.Getwd()
	if err != nil {
		return err
	}

	switch args[0] {
	case "version":
		fmt.Println(version)
		return nil
	case "new":
		return cmdNew(args[1:])
	case "catalog":
		return cmdCatalog(root, args[1:])
	case "registry":
		return cmdRegistry(args[1:])
	case "run":
		return cmdRun(root, args[1:])
	case "view":
		return cmdView(args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func setupLogging(root string) {
	cat := catalog.New(root)
	proj, err := cat.Project()
	if err != nil {
		logging.SetDefault(logging.FromContext(nil))
		return
	}
	level := logging.LevelFromString(proj.Logging.Level)
	logging.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func cmdNew(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pipeflow new <project>")
	}
	dir := args[0]
	dirs := []string{
		dir,
		filepath.Join(dir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	var proj catalog.ProjectConfig
	proj.Logging.Level = "info"
	proj.Logging.ShowProgress = ptr.Bool(true)
	projYAML, err := yaml.Marshal(proj)
	if err != nil {
		return err
	}

	files := map[string][]byte{
		"project.yaml":     projYAML,
		"catalog.yaml":     []byte("{}\n"),
		"parameters.yaml":  []byte("{}\n"),
		"credentials.yaml": []byte("{}\n"),
	}
	for name, contents := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue // don't clobber an existing file
		}
		if err := os.WriteFile(path, contents, 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("initialized pipeflow project at %s\n", dir)
	return nil
}

func cmdCatalog(root string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pipeflow catalog {list|params}")
	}
	cat := catalog.New(root)
	switch args[0] {
	case "list":
		names, err := cat.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	case "params":
		params, err := cat.Parameters()
		if err != nil {
			return err
		}
		for pair := params.Oldest(); pair != nil; pair = pair.Next() {
			fmt.Printf("%s = %v\n", pair.Key, pair.Value)
		}
		return nil
	default:
		return fmt.Errorf("unknown catalog subcommand %q", args[0])
	}
}

func cmdRegistry(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pipeflow registry {pipelines|systems}")
	}
	switch args[0] {
	case "pipelines":
		for _, p := range pipeflow.Pipelines() {
			fmt.Println(p.Name)
		}
		return nil
	case "systems":
		for _, s := range pipeflow.Systems() {
			fmt.Println(s.Name)
		}
		return nil
	default:
		return fmt.Errorf("unknown registry subcommand %q", args[0])
	}
}

func cmdRun(root string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pipeflow run {pipelines|systems} <names...>")
	}
	setupLogging(root)
	ctx := context.Background()

	kind, names := args[0], args[1:]
	for _, name := range names {
		switch kind {
		case "pipelines":
			p, err := pipeflow.GetPipeline(name)
			if err != nil {
				return err
			}
			if err := p.Run(ctx); err != nil {
				return err
			}
		case "systems":
			s, err := pipeflow.GetSystem(name)
			if err != nil {
				return err
			}
			if err := s.Run(ctx); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown run target %q", kind)
		}
	}
	return nil
}

func cmdView(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pipeflow view {pipelines|systems} <names...>")
	}
	kind, names := args[0], args[1:]
	for _, name := range names {
		switch kind {
		case "pipelines":
			p, err := pipeflow.GetPipeline(name)
			if err != nil {
				return err
			}
			fmt.Print(p.String())
		case "systems":
			s, err := pipeflow.GetSystem(name)
			if err != nil {
				return err
			}
			fmt.Print(s.String())
		default:
			return fmt.Errorf("unknown view target %q", kind)
		}
	}
	return nil
}
