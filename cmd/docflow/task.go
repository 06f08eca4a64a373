// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docflow/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, run, and inspect conversion tasks",
	Long: `Task manages resumable batch jobs. Create scans an input directory and
records one item per PDF (or per image folder). Run processes the items
that have not succeeded yet; interrupt it at any time and run it again to
pick up where it stopped.`,
}

// --- create subcommand ---

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Scan an input directory and record a new task",
	RunE:  runTaskCreate,
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	typeName, _ := cmd.Flags().GetString("type")
	typ := task.Type(typeName)
	if !typ.Valid() {
		return fmt.Errorf("unknown task type %q: use %s", typeName, typeNames())
	}
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	defIn, defOut := defaultPaths(typ)
	if input == "" {
		input = defIn
	}
	if output == "" {
		output = defOut
	}

	ctx, stop := signalContext()
	defer stop()
	m, closeFn, err := openManager(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	id, err := m.Create(ctx, typ, input, output)
	if err != nil {
		return err
	}
	sum, err := m.Status(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Created task %s (%s): %d item(s)\n", id, typ, sum.Counts.Total)
	fmt.Fprintf(os.Stdout, "  input:  %s\n  output: %s\n", input, output)

	if run, _ := cmd.Flags().GetBool("run"); run {
		return startTask(ctx, m, id, cmd)
	}
	return nil
}

// --- run subcommand ---

var taskRunCmd = &cobra.Command{
	Use:   "run <task-id>",
	Short: "Start or resume a task",
	Long: `Run processes every item that has not succeeded. Items that failed in an
earlier run are retried until they reach task_manager.max_attempts. With
--no-resume every item is processed again from scratch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		m, closeFn, err := openManager(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		return startTask(ctx, m, args[0], cmd)
	},
}

func startTask(ctx context.Context, m *task.Manager, id string, cmd *cobra.Command) error {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	promptsPath, _ := cmd.Flags().GetString("prompts")
	p, closeFn, err := buildPipeline(ctx, rec.Type, promptsPath)
	if err != nil {
		return err
	}
	defer closeFn()
	proc, err := p.Processor(rec)
	if err != nil {
		return err
	}

	resume := cfg.TaskManager.Resume
	if noResume, _ := cmd.Flags().GetBool("no-resume"); noResume {
		resume = false
	}
	fmt.Fprintf(os.Stdout, "Running task %s (%s, %d item(s), resume=%t)\n\n", id, rec.Type, len(rec.Items), resume)
	return passError(m.Start(ctx, id, proc, runOptions(resume)))
}

// --- list subcommand ---

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, _ := cmd.Flags().GetString("type")
		if typeName != "" && !task.Type(typeName).Valid() {
			return fmt.Errorf("unknown task type %q: use %s", typeName, typeNames())
		}
		ctx := context.Background()
		m, closeFn, err := openManager(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		tasks, err := m.List(ctx, task.Type(typeName))
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, tasks)
		}
		formatTaskList(os.Stdout, tasks)
		return nil
	},
}

func formatTaskList(w io.Writer, tasks []task.Summary) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-17s  %-16s  %-15s  %s\n", "ID", "Type", "Status", "Progress", "Created")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, s := range tasks {
		progress := fmt.Sprintf("%d/%d (%.0f%%)", s.Counts.Succeeded+s.Counts.Skipped, s.Counts.Total, s.Counts.Progress()*100)
		fmt.Fprintf(w, "%-36s  %-17s  %-16s  %-15s  %s\n",
			s.ID, s.Type, s.Status, progress, s.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "\n%d task(s)\n", len(tasks))
}

// --- status subcommand ---

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show progress and failed items of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		m, closeFn, err := openManager(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := m.Get(ctx, args[0])
		if err != nil {
			return err
		}
		formatStatus(os.Stdout, rec)
		return nil
	},
}

func formatStatus(w io.Writer, rec *task.Record) {
	c := rec.Counts()
	fmt.Fprintf(w, "Task:     %s\n", rec.ID)
	fmt.Fprintf(w, "Type:     %s\n", rec.Type)
	fmt.Fprintf(w, "Status:   %s\n", rec.Status)
	fmt.Fprintf(w, "Input:    %s\n", rec.InputPath)
	fmt.Fprintf(w, "Output:   %s\n", rec.OutputPath)
	fmt.Fprintf(w, "Progress: %.1f%% (%d succeeded, %d skipped, %d failed, %d pending of %d)\n",
		c.Progress()*100, c.Succeeded, c.Skipped, c.Failed, c.Pending, c.Total)
	fmt.Fprintf(w, "Created:  %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Updated:  %s\n", rec.UpdatedAt.Local().Format(time.DateTime))
	if rec.ErrorSummary != "" {
		fmt.Fprintf(w, "Error:    %s\n", rec.ErrorSummary)
	}

	failed := rec.FailedItems()
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(w, "\nFailed items:\n")
	for _, it := range failed {
		fmt.Fprintf(w, "  %s (attempts %d): %s\n", it.Identity, it.Attempts, it.LastError)
	}
}

// --- show subcommand ---

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print the full task record as YAML or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		m, closeFn, err := openManager(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		rec, err := m.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, rec)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(rec)
	},
}

// --- cancel subcommand ---

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Ask a running task to stop after its current item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		m, closeFn, err := openManager(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		sum, err := m.Status(ctx, args[0])
		if err != nil {
			return err
		}
		if err := m.Cancel(ctx, args[0]); err != nil {
			return err
		}
		if sum.Status != task.StatusRunning {
			fmt.Fprintf(os.Stdout, "Task %s is not running (%s)\n", args[0], sum.Status)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Cancel requested for task %s\n", args[0])
		return nil
	},
}

// --- delete subcommand ---

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task record (outputs are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		m, closeFn, err := openManager(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		if _, err := m.Status(ctx, args[0]); err != nil {
			return err
		}
		if err := m.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deleted task %s\n", args[0])
		return nil
	},
}

// --- shared helpers ---

// defaultPaths picks the input and output roots from the paths config.
func defaultPaths(typ task.Type) (input, output string) {
	switch typ {
	case task.TypePDFToImage:
		return cfg.Paths.PDFInput, cfg.Paths.ImageOutput
	case task.TypeImageToMarkdown:
		return cfg.Paths.ImageOutput, cfg.Paths.MarkdownOutput
	default:
		return cfg.Paths.PDFInput, cfg.Paths.MarkdownOutput
	}
}

func typeNames() string {
	names := make([]string, len(task.Types))
	for i, t := range task.Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	taskCreateCmd.Flags().String("type", "", "task type: pdf_to_image, image_to_markdown, or full_pipeline")
	taskCreateCmd.Flags().String("input", "", "input directory (default from paths config)")
	taskCreateCmd.Flags().String("output", "", "output directory (default from paths config)")
	taskCreateCmd.Flags().Bool("run", false, "start the task right after creating it")
	taskCreateCmd.MarkFlagRequired("type")

	for _, c := range []*cobra.Command{taskCreateCmd, taskRunCmd} {
		c.Flags().Bool("no-resume", false, "reprocess every item instead of only unfinished ones")
		c.Flags().Int("batch-size", 0, "items processed between two saves of the task record")
		c.Flags().Duration("item-delay", 0, "pause between items")
		c.Flags().Int("max-attempts", 0, "attempts per item across runs before it is left failed")
		c.PreRun = func(cmd *cobra.Command, args []string) {
			bindIfChanged(cmd, "batch-size", func() { cfg.TaskManager.BatchSize, _ = cmd.Flags().GetInt("batch-size") })
			bindIfChanged(cmd, "item-delay", func() { cfg.TaskManager.ItemDelay, _ = cmd.Flags().GetDuration("item-delay") })
			bindIfChanged(cmd, "max-attempts", func() { cfg.TaskManager.MaxAttempts, _ = cmd.Flags().GetInt("max-attempts") })
		}
	}

	taskListCmd.Flags().String("type", "", "only list tasks of this type")
	taskListCmd.Flags().Bool("json", false, "output summaries as JSON")
	taskShowCmd.Flags().Bool("json", false, "output JSON instead of YAML")

	taskCmd.AddCommand(taskCreateCmd, taskRunCmd, taskListCmd, taskStatusCmd, taskShowCmd, taskCancelCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}

// bindIfChanged applies set when the user passed the named flag, so config
// values stay in force otherwise.
func bindIfChanged(cmd *cobra.Command, name string, set func()) {
	if cmd.Flags().Changed(name) {
		set()
	}
}
