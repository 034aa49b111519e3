package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/deepnoodle-ai/notebook"
	"github.com/fatih/color"
)

const (
	exitOK          = 0
	exitRunFailed   = 1
	exitInvalidPlan = 2
)

// CLI configuration
type Config struct {
	ProjectFile  string
	LogsDir      string
	SessionsDir  string
	WorkDir      string
	BlockTimeout time.Duration
	Timeout      time.Duration
	Verbose      bool
	JSON         bool
	ShowPlan     bool
	ShowStats    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	config := parseFlags()

	if config.ProjectFile == "" {
		color.Red("Error: project file is required")
		flag.Usage()
		return exitRunFailed
	}
	if _, err := os.Stat(config.ProjectFile); os.IsNotExist(err) {
		color.Red("Error: project file '%s' not found", config.ProjectFile)
		return exitRunFailed
	}

	logger := setupLogger(config.Verbose)

	color.Blue("Loading project from: %s", config.ProjectFile)
	project, err := notebook.LoadFile(config.ProjectFile)
	if err != nil {
		log.Fatalf("Failed to load project: %v", err)
	}

	color.Cyan("Project: %s", project.Name())
	if project.Description() != "" {
		color.White("Description: %s", project.Description())
	}

	repository := notebook.NewMemoryBlockRepository()
	nb, err := notebook.NewNotebook(notebook.NotebookOptions{
		Repository: repository,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("Failed to create notebook: %v", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	for _, block := range project.Materialize() {
		if _, err := nb.CreateBlock(ctx, block); err != nil {
			log.Fatalf("Failed to add block %q: %v", block.Name, err)
		}
	}

	plan, err := nb.Plan(ctx, project.ID())
	if err != nil {
		log.Fatalf("Failed to plan project: %v", err)
	}
	if !plan.Valid {
		color.Red("Invalid project: %s", plan.Reason)
		for _, id := range plan.CycleBlockIDs {
			color.Red("  cycle involves block %s", id)
		}
		return exitInvalidPlan
	}
	if config.ShowPlan {
		showPlan(ctx, nb, repository, project)
		return exitOK
	}
	if config.ShowStats {
		showStats(ctx, nb, project)
		return exitOK
	}

	// Set up execution logging
	var execLogger notebook.ExecutionLogger
	if config.LogsDir != "" {
		execLogger = notebook.NewFileExecutionLogger(config.LogsDir)
		color.Blue("Execution logs: %s", config.LogsDir)
	} else {
		execLogger = notebook.NewNullExecutionLogger()
	}

	// Set up session snapshot storage
	var store notebook.SessionStore
	if config.SessionsDir != "" {
		store, err = notebook.NewFileSessionStore(config.SessionsDir)
		if err != nil {
			log.Fatalf("Failed to create session store: %v", err)
		}
		color.Blue("Session snapshots: %s", config.SessionsDir)
	} else {
		store = notebook.NewNullSessionStore()
	}

	sessions := notebook.NewSessionManager(notebook.SessionManagerOptions{
		Logger:       logger,
		Store:        store,
		WorkDirRoot:  config.WorkDir,
		BlockTimeout: config.BlockTimeout,
	})
	defer sessions.StopAll(context.Background())

	executor, err := notebook.NewExecutor(notebook.ExecutorOptions{
		Repository:      repository,
		Sessions:        sessions,
		Logger:          logger,
		ExecutionLogger: execLogger,
		Formatter:       newColorFormatter(blockNames(ctx, repository, project)),
	})
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}

	color.Green("Starting run...\n")
	result, err := executor.ExecuteProject(ctx, project.ID())
	if err != nil {
		if notebook.MatchesErrorType(err, notebook.ErrorTypeCycle) {
			color.Red("Run rejected: %v", err)
			return exitInvalidPlan
		}
		color.Red("Run failed: %v", err)
		return exitRunFailed
	}

	showRunResult(result, config)
	if result.Status != notebook.RunStatusCompleted {
		return exitRunFailed
	}
	return exitOK
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.ProjectFile, "file", "", "Path to the YAML project definition file (required)")
	flag.StringVar(&config.ProjectFile, "f", "", "Path to the YAML project definition file (shorthand)")

	flag.StringVar(&config.LogsDir, "logs", "", "Directory to store execution logs (optional)")
	flag.StringVar(&config.LogsDir, "l", "", "Directory to store execution logs (shorthand)")

	flag.StringVar(&config.SessionsDir, "sessions", "", "Directory to store session snapshots (optional)")
	flag.StringVar(&config.SessionsDir, "s", "", "Directory to store session snapshots (shorthand)")

	flag.StringVar(&config.WorkDir, "workdir", "", "Root directory for session working directories (optional)")

	flag.DurationVar(&config.BlockTimeout, "block-timeout", 30*time.Second, "Per-block execution timeout")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Overall run timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Overall run timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")

	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")
	flag.BoolVar(&config.ShowPlan, "show-plan", false, "Show the dependency graph and execution order, then exit")
	flag.BoolVar(&config.ShowStats, "show-stats", false, "Show graph statistics, then exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Notebook CLI - Execute YAML-defined notebook projects

Usage: %s [options] -file <project.yaml>

Examples:
  # Execute a project
  %s -file analysis.yaml

  # Execute with logging and session snapshots
  %s -file analysis.yaml -logs ./logs -sessions ./sessions

  # Inspect the dependency graph without running
  %s -file analysis.yaml -show-plan

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Block Types:
  code     - Risor code, executed in dependency order
  markdown - Rendered text with ${...} interpolation
  sql      - Stored but not executed
  text     - Plain text

Dependencies between code blocks are inferred from the variables,
functions, and modules each block defines and uses. Use depends_on in the
project file to declare edges the analyzer cannot see.

`)
	}

	flag.Parse()
	return config
}

func setupLogger(verbose bool) *slog.Logger {
	if verbose {
		return notebook.NewLogger()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func blockNames(ctx context.Context, repository notebook.BlockRepository, project *notebook.Project) map[string]string {
	names := map[string]string{}
	blocks, err := repository.ListBlocks(ctx, project.ID())
	if err != nil {
		return names
	}
	for _, block := range blocks {
		if block.Name != "" {
			names[block.ID] = block.Name
		} else {
			names[block.ID] = block.ID
		}
	}
	return names
}

func showPlan(ctx context.Context, nb *notebook.Notebook, repository notebook.BlockRepository, project *notebook.Project) {
	graph, err := nb.Graph(ctx, project.ID())
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}
	names := blockNames(ctx, repository, project)

	color.Blue("Edges:")
	for _, edge := range graph.Edges() {
		if edge.Name != "" {
			fmt.Printf("  %s -> %s (%s %q)\n", names[edge.From], names[edge.To], edge.Kind, edge.Name)
		} else {
			fmt.Printf("  %s -> %s (%s)\n", names[edge.From], names[edge.To], edge.Kind)
		}
	}

	plan := notebook.ValidatePlan(graph)
	color.Blue("Execution order:")
	for i, id := range plan.Order {
		fmt.Printf("  %d. %s\n", i+1, names[id])
	}
}

func showStats(ctx context.Context, nb *notebook.Notebook, project *notebook.Project) {
	graph, err := nb.Graph(ctx, project.ID())
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}
	stats := graph.Stats()
	color.Blue("Graph statistics:")
	fmt.Printf("  blocks: %d\n", stats.NodeCount)
	fmt.Printf("  edges: %d\n", stats.EdgeCount)
	for kind, count := range stats.EdgesByKind {
		fmt.Printf("    %s: %d\n", kind, count)
	}
	fmt.Printf("  roots: %d\n", len(stats.Roots))
	fmt.Printf("  leaves: %d\n", len(stats.Leaves))
	fmt.Printf("  max depth: %d\n", stats.MaxDepth)
}

func showRunResult(result *notebook.RunResult, config *Config) {
	if config.JSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal result: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Println()
	switch result.Status {
	case notebook.RunStatusCompleted:
		color.Green("Run %s completed in %v", result.RunID, result.Duration)
	case notebook.RunStatusCompletedWithErrors:
		color.Yellow("Run %s completed with errors in %v", result.RunID, result.Duration)
	default:
		color.Red("Run %s failed: %s", result.RunID, result.Error)
	}

	completed, failed, skipped := 0, 0, 0
	for _, r := range result.Results {
		switch r.Status {
		case notebook.BlockStatusCompleted:
			completed++
		case notebook.BlockStatusFailed:
			failed++
		case notebook.BlockStatusSkipped:
			skipped++
		}
	}
	fmt.Printf("  completed: %d  failed: %d  skipped: %d\n", completed, failed, skipped)
}

// colorFormatter prints per-block progress with color
type colorFormatter struct {
	names map[string]string
}

func newColorFormatter(names map[string]string) *colorFormatter {
	return &colorFormatter{names: names}
}

func (f *colorFormatter) name(blockID string) string {
	if name, ok := f.names[blockID]; ok {
		return name
	}
	return blockID
}

func (f *colorFormatter) PrintBlockStart(blockID string, ordinal int) {
	color.Cyan("[%d] %s", ordinal, f.name(blockID))
}

func (f *colorFormatter) PrintBlockOutput(blockID string, result *notebook.ExecutionResult) {
	if result.Status == notebook.BlockStatusSkipped {
		color.Yellow("    skipped (upstream %s failed)", f.name(result.SkippedBecause))
		return
	}
	if result.Stdout != "" {
		fmt.Print(result.Stdout)
	}
	for _, artifact := range result.Artifacts {
		color.White("    artifact: %s (%s)", artifact.Name, artifact.Type)
	}
}

func (f *colorFormatter) PrintBlockError(blockID string, err string) {
	color.Red("    error: %s", err)
}
