package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"auto_social_publisher/compose"
	"auto_social_publisher/config"
	"auto_social_publisher/journal"
	"auto_social_publisher/logging"
	"auto_social_publisher/publisher"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	verbose    bool
	noColor    bool
}

func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "social-publisher",
		Short:         "Compose Facebook posts and mailings from a Telegram chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "config/config.yaml", "path to config.yaml")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logs")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored logs")

	cmd.AddCommand(botCmd(g), publishCmd(g), whenCmd(g), historyCmd(g))
	return cmd
}

func botCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram assistant until the operator quits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, cfg.Log.Level, g.noColor)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, logger)
		},
	}
}

func publishCmd(g *globalFlags) *cobra.Command {
	var (
		textPath string
		images   []string
		at       string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a prepared text to the Facebook page without the chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, cfg.Log.Level, g.noColor)
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			when, err := parseAt(at, time.Now().In(loc))
			if err != nil {
				return err
			}
			post, err := readPost(textPath, images)
			if err != nil {
				return err
			}
			fb, err := publisher.New(cfg.Facebook, nil, logging.Component(logger, "facebook"))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger.Info("publishing", "text", textPath, "images", len(post.Images), "at", at)
			var rec publisher.Receipt
			if when.IsZero() {
				rec, err = fb.Publish(ctx, post)
			} else {
				rec, err = fb.Schedule(ctx, post, when)
			}
			if err != nil {
				return err
			}
			recordCLI(ctx, cfg, logger, post, rec, when)

			if when.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), rec.URL)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s scheduled %s\n", rec.PostID, when.In(loc).Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&textPath, "text", "", "path to the post text (required)")
	cmd.Flags().StringArrayVar(&images, "image", nil, "image to attach, repeatable")
	cmd.Flags().StringVar(&at, "at", "now", `"now", "slot" (next evening/morning slot) or an RFC 3339 time`)
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func whenCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "when",
		Short: "Print the next post and mailing slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "post:    %s\n", compose.NextPostSlot(now).Format("Mon 02/01/2006 15:04 MST"))
			fmt.Fprintf(out, "mailing: %s\n", compose.NextMailingSlot(now, loc).In(loc).Format("Mon 02/01/2006 15:04 MST"))
			return nil
		},
	}
}

func historyCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the last deliveries from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return &config.Error{Field: "journal.path", Msg: "journal disabled"}
			}
			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of deliveries")
	return cmd
}

func printHistory(w io.Writer, records []compose.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tKIND\tOP\tRECEIPT\tTARGET\tEXCERPT")
	for _, r := range records {
		target := "-"
		if !r.When.IsZero() {
			target = r.When.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format(time.RFC3339), r.Kind, r.Op, r.ReceiptID, target, r.Excerpt)
	}
	return tw.Flush()
}

// parseAt reads the --at flag. A zero time means publish now.
func parseAt(at string, now time.Time) (time.Time, error) {
	switch at {
	case "", "now":
		return time.Time{}, nil
	case "slot":
		return compose.NextPostSlot(now), nil
	}
	t, err := time.ParseInLocation(time.RFC3339, at, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("--at: %s is not in the future", at)
	}
	return t, nil
}

func readPost(textPath string, images []string) (publisher.Post, error) {
	text, err := os.ReadFile(textPath)
	if err != nil {
		return publisher.Post{}, err
	}
	post := publisher.Post{Message: string(text)}
	for _, p := range images {
		img, err := os.ReadFile(p)
		if err != nil {
			return publisher.Post{}, err
		}
		post.Images = append(post.Images, img)
	}
	return post, nil
}

func recordCLI(ctx context.Context, cfg *config.Config, logger *slog.Logger, post publisher.Post, rec publisher.Receipt, when time.Time) {
	if cfg.Journal.Path == "" {
		return
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		logger.Warn("journal unavailable", "err", err)
		return
	}
	defer store.Close()
	op := "publish"
	if !when.IsZero() {
		op = "schedule"
	}
	err = store.Record(ctx, compose.Record{
		FlowID:    "cli",
		Kind:      "post",
		Op:        op,
		ReceiptID: rec.PostID,
		URL:       rec.URL,
		When:      when,
		Excerpt:   compose.Excerpt(post.Message),
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Warn("journal write failed", "err", err)
	}
}
