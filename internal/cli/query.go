package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DariyDar/astra/internal/briefing"
	"github.com/DariyDar/astra/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// errQueryFailed marks an error outcome that was already printed.
var errQueryFailed = errors.New("query failed")

type queryFlags struct {
	sources  []string
	kind     string
	period   string
	term     string
	channels []string
	limit    int
	fields   []string
	compact  bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.sources, "sources", "s", nil, "sources to query: slack, gmail, calendar, clickup (default slack,gmail,calendar)")
	cmd.Flags().StringVarP(&f.kind, "type", "t", "", "query type: recent, digest, search, unread (default recent)")
	cmd.Flags().StringVarP(&f.period, "period", "p", "", `period: today, yesterday, last_3_days, last_week, last_month or "2026-01-01/2026-01-20" (default today)`)
	cmd.Flags().StringVarP(&f.term, "term", "q", "", "search term (required with --type search)")
	cmd.Flags().StringSliceVar(&f.channels, "channels", nil, "Slack channels by name (default: most active)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, fmt.Sprintf("max items per source (default %d, max %d)", briefing.DefaultLimit, briefing.MaxLimit))
	cmd.Flags().StringSliceVarP(&f.fields, "fields", "f", nil, "fields to keep in each item (default all)")
}

// request converts flags into a briefing request. Unset flags stay empty
// so the service applies its defaults.
func (f *queryFlags) request(cmd *cobra.Command) briefing.BriefingRequest {
	req := briefing.BriefingRequest{
		Sources:       f.sources,
		QueryType:     f.kind,
		Period:        f.period,
		SearchTerm:    f.term,
		SlackChannels: f.channels,
		Fields:        f.fields,
	}
	if cmd.Flags().Changed("limit") {
		n := f.limit
		req.LimitPerSource = &n
	}
	return req
}

func writeOutcome(cmd *cobra.Command, out briefing.Outcome, compact bool) error {
	var (
		data []byte
		err  error
	)
	if compact {
		data, err = json.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	if !out.OK() {
		return errQueryFailed
	}
	return nil
}

func queryCmd(o *rootOptions) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a briefing query and print the result as JSON",
		Example: `  astra-briefing query
  astra-briefing query -s slack,clickup -p last_week -n 20
  astra-briefing query -t search -q invoice -f author,subject,date`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return writeOutcome(cmd, app.Service.Briefing(cmd.Context(), f.request(cmd)), f.compact)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.compact, "compact", false, "print compact JSON")
	return cmd
}

func searchCmd(o *rootOptions) *cobra.Command {
	var (
		period  string
		limit   int
		compact bool
	)
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search a keyword across every source",
		Example: `  astra-briefing search "quarterly plan"
  astra-briefing search invoice -p last_week -n 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			req := briefing.SearchRequest{SearchTerm: strings.Join(args, " "), Period: period}
			if cmd.Flags().Changed("limit") {
				req.LimitPerSource = &limit
			}
			return writeOutcome(cmd, app.Service.SearchEverywhere(cmd.Context(), req), compact)
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "", "period to search (default last_month)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, fmt.Sprintf("max results per source (default %d)", briefing.DefaultSearchLimit))
	cmd.Flags().BoolVar(&compact, "compact", false, "print compact JSON")
	return cmd
}

func viewCmd(o *rootOptions) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Run a briefing query and browse the result interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := o.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			req := f.request(cmd)
			title := "briefing"
			if req.SearchTerm != "" {
				title = fmt.Sprintf("search %q", req.SearchTerm)
			}
			m := tui.NewAppModel(title, func(ctx context.Context) briefing.Outcome {
				return app.Service.Briefing(ctx, req)
			})
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			finalModel, err := p.Run()
			if err != nil {
				return fmt.Errorf("run viewer: %w", err)
			}
			if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
				return m.Err
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// IsReported reports whether err was already written to stdout as a
// result object.
func IsReported(err error) bool {
	return errors.Is(err, errQueryFailed)
}
