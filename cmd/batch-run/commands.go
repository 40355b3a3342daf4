package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"z-novel-batch/internal/application/batch"
	"z-novel-batch/internal/application/chapter"
	"z-novel-batch/internal/application/outline"
	"z-novel-batch/internal/config"
	"z-novel-batch/internal/domain/entity"
	"z-novel-batch/internal/infrastructure/messaging"
	"z-novel-batch/internal/wire"
)

var (
	startNovel    string
	startTemplate string
	startCount    int

	detectNovel string

	generateNovel    string
	generateTemplate string
	generateOutline  string
	generateIndex    int
	generateOutput   string

	watchFrom string
	watchAll  bool
)

// overrideFlags 生成参数覆盖项，只有显式传入的 flag 才生效
var overrideFlags struct {
	model          string
	useMemory      bool
	readCompressed bool
	useCompression bool
	useState       bool
	useWorldBible  bool
	updateState    bool
	recentCount    int
}

func init() {
	// start command
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Generate the next N chapters of a novel",
		RunE:  runStart,
	}
	startCmd.Flags().StringVar(&startNovel, "novel", "", "novel id")
	startCmd.Flags().StringVar(&startTemplate, "template", "", "prompt template id")
	startCmd.Flags().IntVar(&startCount, "count", 1, "number of chapters to generate")
	addOverrideFlags(startCmd)
	_ = startCmd.MarkFlagRequired("novel")
	_ = startCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(startCmd)

	// detect command
	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "Show the latest generated chapter of a novel",
		RunE:  runDetect,
	}
	detectCmd.Flags().StringVar(&detectNovel, "novel", "", "novel id")
	_ = detectCmd.MarkFlagRequired("novel")
	rootCmd.AddCommand(detectCmd)

	// generate command
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a single chapter from an outline",
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringVar(&generateNovel, "novel", "", "novel id; without it the chapter is not saved")
	generateCmd.Flags().StringVar(&generateTemplate, "template", "", "prompt template id")
	generateCmd.Flags().StringVar(&generateOutline, "outline", "", "outline text, or @file to read it from a file")
	generateCmd.Flags().IntVar(&generateIndex, "index", 0, "chapter index; 0 extracts it from the outline")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "write the chapter content to this file")
	addOverrideFlags(generateCmd)
	_ = generateCmd.MarkFlagRequired("template")
	_ = generateCmd.MarkFlagRequired("outline")
	rootCmd.AddCommand(generateCmd)

	// index command
	indexCmd := &cobra.Command{
		Use:   "index TEXT...",
		Short: "Extract the chapter index from outline text",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndex,
	}
	rootCmd.AddCommand(indexCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow run events published to the Redis stream",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchFrom, "from", "$", `stream id to start after; "0" replays the whole stream`)
	watchCmd.Flags().BoolVar(&watchAll, "follow", false, "keep following after a run finishes")
	rootCmd.AddCommand(watchCmd)
}

func addOverrideFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&overrideFlags.model, "model", "", "model name")
	f.BoolVar(&overrideFlags.useMemory, "use-memory", false, "retrieve long-term memory")
	f.BoolVar(&overrideFlags.readCompressed, "read-compressed", false, "read compressed history")
	f.BoolVar(&overrideFlags.useCompression, "use-compression", false, "compress generated content")
	f.BoolVar(&overrideFlags.useState, "use-state", false, "inject character state")
	f.BoolVar(&overrideFlags.useWorldBible, "use-world-bible", false, "inject world bible")
	f.BoolVar(&overrideFlags.updateState, "update-state", false, "update character state after generation")
	f.IntVar(&overrideFlags.recentCount, "recent-count", 0, "number of recent messages in context")
}

// buildOverrides 只收集显式设置过的 flag
func buildOverrides(cmd *cobra.Command) *batch.ConfigOverrides {
	f := cmd.Flags()
	o := &batch.ConfigOverrides{}
	if f.Changed("model") {
		o.ModelName = &overrideFlags.model
	}
	if f.Changed("use-memory") {
		o.UseMemory = &overrideFlags.useMemory
	}
	if f.Changed("read-compressed") {
		o.ReadCompressed = &overrideFlags.readCompressed
	}
	if f.Changed("use-compression") {
		o.UseCompression = &overrideFlags.useCompression
	}
	if f.Changed("use-state") {
		o.UseState = &overrideFlags.useState
	}
	if f.Changed("use-world-bible") {
		o.UseWorldBible = &overrideFlags.useWorldBible
	}
	if f.Changed("update-state") {
		o.UpdateState = &overrideFlags.updateState
	}
	if f.Changed("recent-count") {
		o.RecentCount = &overrideFlags.recentCount
	}
	return o
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withRunner(context.WithoutCancel(ctx), func(_ context.Context, _ *config.Config, runner *wire.Runner) error {
		controller := runner.Controller

		events, unsubscribe := controller.Subscribe()
		defer unsubscribe()

		job, err := controller.StartBatch(ctx, batch.StartRequest{
			NovelID:      startNovel,
			TemplateID:   startTemplate,
			ChapterCount: startCount,
			Overrides:    buildOverrides(cmd),
		})
		if err != nil {
			return err
		}

		done := make(chan struct{})
		go func() {
			_ = controller.Wait(context.Background())
			close(done)
		}()

		out := cmd.OutOrStdout()
		interrupted := ctx.Done()
		var lastSeq int64
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Log != nil {
					lastSeq = ev.Log.Seq
				}
				printEvent(out, ev)
			case <-interrupted:
				interrupted = nil
				if controller.Cancel(context.Background()) {
					fmt.Fprintln(out, "stop requested, waiting for the chapter in progress...")
				}
			case <-done:
				// 订阅缓冲区满时可能丢失日志，从 journal 补齐
				for _, entry := range controller.Logs(lastSeq) {
					printEvent(out, &entity.RunEvent{Type: entity.RunEventLog, Log: entry})
				}
				return runResult(controller.Snapshot(), job.RunID)
			}
		}
	})
}

// runResult 运行失败时返回错误，使进程以非零状态退出
func runResult(job *entity.BatchJob, runID string) error {
	if job == nil || job.RunID != runID {
		return fmt.Errorf("run %s not found", runID)
	}
	if job.Status == entity.BatchStatusFailed {
		return fmt.Errorf("run %s failed at chapter %d: %s", job.RunID, job.FailedChapter, job.LastError)
	}
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	return withRunner(cmd.Context(), func(ctx context.Context, _ *config.Config, runner *wire.Runner) error {
		progress, err := runner.Controller.DetectProgress(ctx, detectNovel)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "novel:          %s\n", progress.NovelID)
		fmt.Fprintf(out, "latest chapter: %d\n", progress.MaxChapter)
		fmt.Fprintf(out, "next chapter:   %d\n", progress.NextChapter())
		fmt.Fprintf(out, "chapter files:  %d\n", progress.TotalChapterFiles)
		if progress.SyncStatus != "" {
			fmt.Fprintf(out, "summary sync:   %s\n", progress.SyncStatus)
		}
		return nil
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	text, err := readOutlineArg(generateOutline)
	if err != nil {
		return err
	}

	return withRunner(cmd.Context(), func(ctx context.Context, _ *config.Config, runner *wire.Runner) error {
		result, err := runner.Generator.GenerateSingle(ctx, chapter.Request{
			NovelID:      generateNovel,
			TemplateID:   generateTemplate,
			Outline:      text,
			ChapterIndex: generateIndex,
			Overrides:    buildOverrides(cmd),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if generateOutput != "" {
			if err := os.WriteFile(generateOutput, []byte(result.Content), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
		} else {
			fmt.Fprintln(out, result.Content)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "chapter %d: %d words\n", result.ChapterIndex, result.WordCount)
		if result.IndexDefaulted {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: chapter index not found in outline, used 1")
		}
		switch {
		case result.Saved != nil:
			fmt.Fprintf(cmd.ErrOrStderr(), "saved as %s\n", result.Saved.Filename)
		case result.SaveError != "":
			fmt.Fprintf(cmd.ErrOrStderr(), "auto-save failed: %s\n", result.SaveError)
		}
		return nil
	})
}

// readOutlineArg 支持 @path 形式从文件读取细纲
func readOutlineArg(arg string) (string, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read outline: %w", err)
		}
		return string(data), nil
	}
	return arg, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	index, ok := outline.ExtractChapterIndex(text)
	if !ok {
		return errors.New("no chapter index found")
	}
	fmt.Fprintln(cmd.OutOrStdout(), index)
	return nil
}

var errRunFinished = errors.New("run finished")

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withRunner(ctx, func(ctx context.Context, cfg *config.Config, runner *wire.Runner) error {
		if runner.RedisClient == nil {
			return errors.New("watch needs redis: set cache.redis.enabled=true")
		}

		tailer := messaging.NewTailer(runner.RedisClient.Redis(), messaging.TailerConfig{
			Stream: messaging.Stream(cfg.Messaging.RedisStream.Stream),
		})
		out := cmd.OutOrStdout()
		err := tailer.Run(ctx, watchFrom, func(_ context.Context, msg *messaging.Message) error {
			var ev entity.RunEvent
			if err := msg.UnmarshalPayload(&ev); err != nil {
				return nil
			}
			printEvent(out, &ev)
			if ev.Type == entity.RunEventFinished && !watchAll {
				return errRunFinished
			}
			return nil
		})
		if errors.Is(err, errRunFinished) {
			return nil
		}
		return err
	})
}

// printEvent 以一行文本输出运行事件
func printEvent(w io.Writer, ev *entity.RunEvent) {
	switch ev.Type {
	case entity.RunEventLog:
		if ev.Log == nil {
			return
		}
		fmt.Fprintf(w, "%s [%-7s] %s\n", ev.Log.Time.Format("15:04:05"), ev.Log.Level, ev.Log.Message)
	case entity.RunEventProgress:
		if ev.Progress == nil {
			return
		}
		fmt.Fprintf(w, "progress %d/%d (%.0f%%)\n", ev.Progress.Current, ev.Progress.Total, ev.Progress.Percent)
	case entity.RunEventFinished:
		if ev.Job == nil {
			return
		}
		data, _ := json.Marshal(struct {
			RunID    string             `json:"run_id"`
			Status   entity.BatchStatus `json:"status"`
			Done     int                `json:"done"`
			Total    int                `json:"total"`
			Duration int64              `json:"duration_ms"`
		}{ev.Job.RunID, ev.Job.Status, ev.Job.CurrentChapter, ev.Job.TotalChapters, ev.Job.DurationMs})
		fmt.Fprintf(w, "finished %s\n", data)
	}
}
