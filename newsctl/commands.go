package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/news-provenance/internal/client"
	"github.com/DeafMist/news-provenance/internal/config"
	"github.com/DeafMist/news-provenance/internal/logger"
	"github.com/DeafMist/news-provenance/internal/task"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

type cli struct {
	cfg     *config.CLI
	apiURL  string
	timeout time.Duration
	asJSON  bool
}

func newRootCmd(cfg *config.CLI) *cobra.Command {
	c := &cli{cfg: cfg}

	root := &cobra.Command{
		Use:          "newsctl",
		Short:        "Trace the sources behind a news claim",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.PersistentFlags().StringVar(&c.apiURL, "api-url", cfg.APIBaseURL, "news-provenance API base URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", cfg.WaitTimeout, "maximum time to wait for a task")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print raw JSON instead of Markdown")

	root.AddCommand(c.queryCmd(), c.timelineCmd(), c.buildCmd())
	return root
}

func (c *cli) client() *client.Client {
	return client.New(c.apiURL, 0)
}

func (c *cli) poll(cmd *cobra.Command) client.PollOptions {
	return client.PollOptions{
		Interval: c.cfg.PollInterval,
		Timeout:  c.timeout,
		OnProgress: func(info task.Info) {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s %s\n", info.Progress, info.ID, info.Status)
		},
	}
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		mode         string
		withTimeline bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Research a claim, verify it and optionally print its source timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api := c.client()

			info, err := api.CreateQuery(ctx, args[0], mode)
			if err != nil {
				return fmt.Errorf("submit query: %w", err)
			}
			if _, err := api.WaitForQuery(ctx, info.ID, c.poll(cmd)); err != nil {
				return fmt.Errorf("wait for query: %w", err)
			}
			_, res, err := api.QueryResult(ctx, info.ID)
			if err != nil {
				return fmt.Errorf("fetch result: %w", err)
			}

			if c.asJSON {
				if err := printJSON(cmd, res); err != nil {
					return err
				}
			} else {
				cmd.Println(res.Report)
				if v := res.Verification; v != nil {
					cmd.Printf("\nVerdict: %s\n", v.Verdict)
					if v.Summary != "" {
						cmd.Println(v.Summary)
					}
				}
			}

			if !withTimeline {
				return nil
			}
			return c.remoteTimeline(ctx, cmd, info.ID)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "deep", "research mode: deep or quick")
	cmd.Flags().BoolVar(&withTimeline, "timeline", false, "also build the source timeline")
	return cmd
}

func (c *cli) timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <query-task-id>",
		Short: "Build the source timeline of a finished query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.remoteTimeline(cmd.Context(), cmd, args[0])
		},
	}
}

func (c *cli) remoteTimeline(ctx context.Context, cmd *cobra.Command, queryTaskID string) error {
	api := c.client()
	info, err := api.CreateTimeline(ctx, queryTaskID)
	if err != nil {
		return fmt.Errorf("submit timeline: %w", err)
	}
	if _, err := api.WaitForTimeline(ctx, info.ID, c.poll(cmd)); err != nil {
		return fmt.Errorf("wait for timeline: %w", err)
	}
	_, tl, err := api.TimelineResult(ctx, info.ID)
	if err != nil {
		return fmt.Errorf("fetch timeline: %w", err)
	}
	return c.printTimeline(cmd, tl)
}

func (c *cli) buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <state.json>",
		Short: "Render a timeline from a saved research state without a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read state: %w", err)
			}
			tl, err := timeline.NewBuilder(nil, logger.Discard()).BuildJSON(raw)
			if err != nil {
				return err
			}
			return c.printTimeline(cmd, tl)
		},
	}
}

func (c *cli) printTimeline(cmd *cobra.Command, tl timeline.Timeline) error {
	if c.asJSON {
		return printJSON(cmd, tl)
	}
	cmd.Print(timeline.FormatMarkdown(tl))
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
