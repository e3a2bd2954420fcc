package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/analytics"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/app"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/config"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Read recorded widget analytics",
		SilenceUsage: true,
	}
	app.AddConfigFlags(root, v)
	root.PersistentFlags().String("db", "", "analytics database (overrides analytics.db_path)")
	root.PersistentFlags().Bool("json", false, "output as JSON instead of a table")
	_ = v.BindPFlag("analytics.db_path", root.PersistentFlags().Lookup("db"))

	root.AddCommand(sessionsCmd(v), eventsCmd(v), countsCmd(v))
	return root
}

// withStore opens the configured database for the duration of fn.
func withStore(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, store *analytics.Store, jsonOut bool) error) error {
	cfg, _, err := app.LoadConfig(cmd, v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Analytics.DBPath); err != nil {
		return fmt.Errorf("open %s: %w", cfg.Analytics.DBPath, err)
	}
	store, err := analytics.NewStore(cmd.Context(), cfg.Analytics.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	jsonOut, _ := cmd.Flags().GetBool("json")
	return fn(cmd.Context(), store, jsonOut)
}

// #endregion main

// #region sessions

func sessionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, v, func(ctx context.Context, store *analytics.Store, jsonOut bool) error {
				return runSessions(ctx, store, cmd.OutOrStdout(), jsonOut)
			})
		},
	}
}

type sessionRow struct {
	SessionID string `json:"session_id"`
	Events    int    `json:"events"`
	FirstAt   string `json:"first_at"`
	LastAt    string `json:"last_at"`
}

func runSessions(ctx context.Context, store *analytics.Store, out io.Writer, jsonOut bool) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	rows := make([]sessionRow, len(sessions))
	for i, s := range sessions {
		rows[i] = sessionRow{
			SessionID: s.ID,
			Events:    s.Events,
			FirstAt:   s.FirstAt.Format("2006-01-02T15:04:05Z"),
			LastAt:    s.LastAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	if jsonOut {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no sessions recorded")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %6s  %-20s  %s\n", "Session", "Events", "First", "Last")
	fmt.Fprintf(out, "%-36s+-%6s+-%-20s+-%s\n",
		"------------------------------------", "------", "--------------------", "--------------------")
	for _, r := range rows {
		fmt.Fprintf(out, "%-36s  %6d  %-20s  %s\n", r.SessionID, r.Events, r.FirstAt, r.LastAt)
	}
	return nil
}

// #endregion sessions

// #region events

func eventsCmd(v *viper.Viper) *cobra.Command {
	var session string
	var last int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events in recording order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, v, func(ctx context.Context, store *analytics.Store, jsonOut bool) error {
				return runEvents(ctx, store, cmd.OutOrStdout(), session, last, jsonOut)
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "only this session")
	cmd.Flags().IntVar(&last, "last", 0, "show only the N most recent events")
	return cmd
}

type eventRow struct {
	Seq       int64  `json:"seq"`
	SessionID string `json:"session_id"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Label     string `json:"label,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runEvents(ctx context.Context, store *analytics.Store, out io.Writer, session string, last int, jsonOut bool) error {
	events, err := store.List(ctx, session, 0)
	if err != nil {
		return err
	}
	if last > 0 && len(events) > last {
		events = events[len(events)-last:]
	}
	rows := make([]eventRow, len(events))
	for i, e := range events {
		rows[i] = eventRow{
			Seq:       e.Seq,
			SessionID: e.SessionID,
			Category:  e.Category,
			Action:    e.Action,
			Label:     e.Label,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05.000Z"),
		}
	}
	if jsonOut {
		return printJSON(out, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no events found")
		return nil
	}
	fmt.Fprintf(out, "%5s  %-8s  %-8s  %-16s  %-10s  %s\n", "Seq", "Session", "Category", "Action", "Label", "Time")
	fmt.Fprintf(out, "%5s+-%-8s+-%-8s+-%-16s+-%-10s+-%s\n",
		"-----", "--------", "--------", "----------------", "----------", "------------------------")
	for _, r := range rows {
		label := r.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(out, "%5d  %-8s  %-8s  %-16s  %-10s  %s\n",
			r.Seq, shortID(r.SessionID), r.Category, r.Action, label, r.CreatedAt)
	}
	return nil
}

// #endregion events

// #region counts

func countsCmd(v *viper.Viper) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Tally events by category and action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, v, func(ctx context.Context, store *analytics.Store, jsonOut bool) error {
				return runCounts(ctx, store, cmd.OutOrStdout(), session, jsonOut)
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "only this session")
	return cmd
}

func runCounts(ctx context.Context, store *analytics.Store, out io.Writer, session string, jsonOut bool) error {
	counts, err := store.CountByAction(ctx, session)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(out, counts)
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0
	for _, k := range keys {
		fmt.Fprintf(out, "%-28s %6d\n", k, counts[k])
		total += counts[k]
	}
	fmt.Fprintf(out, "%-28s %6d\n", "total", total)
	return nil
}

// #endregion counts

// #region helpers

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
