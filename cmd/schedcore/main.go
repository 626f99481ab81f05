package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/planwise/schedcore/internal/config"
	"github.com/planwise/schedcore/internal/logging"
	"github.com/planwise/schedcore/internal/model"
	"github.com/planwise/schedcore/internal/session"
	"github.com/planwise/schedcore/internal/store"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "critical":
		runCritical(os.Args[2:])
	case "version":
		fmt.Printf("schedcore %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// projectFile is the on-disk shape of a schedule: tasks, links, and date
// constraints in one YAML document.
type projectFile struct {
	Tasks        []model.Task       `yaml:"tasks"`
	Dependencies []model.Dependency `yaml:"dependencies"`
	Constraints  []model.Constraint `yaml:"constraints"`
}

func loadProject(path string) (projectFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return projectFile{}, fmt.Errorf("read project: %w", err)
	}
	var p projectFile
	if err := yamlv3.Unmarshal(data, &p); err != nil {
		return projectFile{}, fmt.Errorf("parse project: %w", err)
	}
	return p, nil
}

// openSession loads the project into a fresh session backed by a scratch
// store, so CLI runs never touch the project's persisted records.
func openSession(cfg config.Config, p projectFile) (*session.Session, error) {
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.Logging.Level))
	s := session.New(cfg, store.NewMemory(), logger, session.Options{})

	for _, t := range p.Tasks {
		if err := s.AddTask(t); err != nil {
			_ = s.Close(context.Background())
			return nil, err
		}
	}
	if err := s.SetDependencies(p.Dependencies); err != nil {
		_ = s.Close(context.Background())
		return nil, err
	}
	for _, c := range p.Constraints {
		res := s.SaveConstraint(context.Background(), c)
		if res.Err != nil {
			_ = s.Close(context.Background())
			return nil, fmt.Errorf("constraint for task %s: %w", c.TaskID, res.Err)
		}
	}
	return s, nil
}

func parseProjectFlags(args []string, usage string) (projectPath, configPath string, jsonOut bool) {
	projectPath = "project.yaml"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--project":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--project requires a value")
				os.Exit(1)
			}
			i++
			projectPath = args[i]
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			i++
			configPath = args[i]
		case "--json":
			jsonOut = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", args[i], usage)
			os.Exit(1)
		}
	}
	return projectPath, configPath, jsonOut
}

func loadConfigOrDefault(path string) config.Config {
	if path == "" {
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runValidate(args []string) {
	projectPath, configPath, jsonOut :=
		parseProjectFlags(args, "usage: schedcore validate [--project <file>] [--config <file>] [--json]")

	cfg := loadConfigOrDefault(configPath)
	p, err := loadProject(projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		os.Exit(1)
	}

	s, err := openSession(cfg, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		os.Exit(1)
	}
	defer s.Close(context.Background())

	rec := s.Recalculate(context.Background())

	if jsonOut {
		out, _ := json.MarshalIndent(rec.Violations, "", "  ")
		fmt.Println(string(out))
	} else if len(rec.Violations) == 0 {
		fmt.Println("no violations")
	} else {
		for _, v := range rec.Violations {
			fmt.Printf("%s\t%s\t%s\n", v.Severity, v.Kind, v.Message)
		}
	}

	for _, v := range rec.Violations {
		if v.Severity == model.SeverityError {
			os.Exit(2)
		}
	}
}

func runCritical(args []string) {
	projectPath, configPath, jsonOut :=
		parseProjectFlags(args, "usage: schedcore critical [--project <file>] [--config <file>] [--json]")

	cfg := loadConfigOrDefault(configPath)
	p, err := loadProject(projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "critical: %v\n", err)
		os.Exit(1)
	}

	s, err := openSession(cfg, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "critical: %v\n", err)
		os.Exit(1)
	}
	defer s.Close(context.Background())

	rec := s.Recalculate(context.Background())
	if rec.Critical == nil {
		fmt.Fprintln(os.Stderr, "critical path unavailable: dependency graph has a cycle")
		os.Exit(2)
	}

	if jsonOut {
		out, _ := json.MarshalIndent(rec.Critical, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("project span: %d day(s)\n", rec.Critical.TotalDays)
	for _, t := range s.Tasks() {
		mark := " "
		if rec.Critical.CriticalTaskIDs[t.ID] {
			mark = "*"
		}
		fmt.Printf("%s %-20s %s..%s slack=%d\n", mark, t.Name,
			model.FormatDay(t.StartDate), model.FormatDay(t.EndDate),
			rec.Critical.Slack[t.ID])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `schedcore %s — scheduling constraint engine

Usage: schedcore <command> [options]

Commands:
  validate [--project <file>] [--config <file>] [--json]
                    Check a project file for constraint and link violations
  critical [--project <file>] [--config <file>] [--json]
                    Compute the critical path and per-task slack
  version           Show version
  help              Show this help

validate exits 2 when error-severity violations are found; critical exits
2 when the dependency graph has a cycle.

`, version)
}
