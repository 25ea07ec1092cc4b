package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"designflow/internal/domain"
	"designflow/internal/engine"
	"designflow/internal/report"
	"designflow/internal/timeline"
)

func timelineCmd() *cobra.Command {
	var opts engine.TimelineOptions
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show each designer's started work as a day grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				layout, err := e.Timeline(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(layout)
				}
				renderTimeline(layout)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Start, "start", "", "first day YYYY-MM-DD (defaults to the start of this week)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "window length in days (defaults to config)")
	return cmd
}

// renderTimeline draws one line per bar so overlapping requests stay readable.
func renderTimeline(layout timeline.Layout) {
	tw := newTable()
	header := table.Row{"Designer", "Request"}
	for _, d := range layout.Dates {
		header = append(header, d[len(d)-2:])
	}
	tw.AppendHeader(header)
	for _, row := range layout.Rows {
		if len(row.Bars) == 0 {
			cells := table.Row{row.Designer.Name, "-"}
			for range layout.Dates {
				cells = append(cells, "")
			}
			tw.AppendRow(cells)
			continue
		}
		for _, bar := range row.Bars {
			paint := statusColor(bar.Status)
			cells := table.Row{row.Designer.Name, bar.RequestID}
			for i := range layout.Dates {
				if i >= bar.OffsetDays && i < bar.OffsetDays+bar.DurationDays {
					cells = append(cells, paint("██"))
				} else {
					cells = append(cells, "")
				}
			}
			tw.AppendRow(cells)
		}
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	tw.Render()
}

func reportCmd() *cobra.Command {
	var insights bool
	var period string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Request volume by type, function and status, plus utilization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.Report(ctx)
				if err != nil {
					return err
				}
				var summary string
				if insights {
					if summary, err = e.Insights(ctx, period); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					out := map[string]any{"stats": stats}
					if insights {
						out["insights"] = summary
					}
					return printJSON(out)
				}
				renderCounts("By type", stats.TypeData)
				renderCounts("By function", stats.FunctionData)
				renderCounts("By status", stats.StatusData)
				renderUtilization(stats.Utilization)
				if insights {
					fmt.Println()
					fmt.Println(color.New(color.Bold).Sprint("Insights"))
					fmt.Println(summary)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&insights, "insights", false, "ask the AI advisor for a summary")
	cmd.Flags().StringVar(&period, "period", "month", "period label for the summary")
	return cmd
}

func renderCounts(title string, items []report.CategoryCount) {
	tw := newTable()
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"Name", "Requests"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.Name, c.Value})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	tw.Render()
}

func renderUtilization(items []report.Utilization) {
	tw := newTable()
	tw.SetTitle("Utilization")
	tw.AppendHeader(table.Row{"Designer", "Assigned", "Capacity", "Load"})
	for _, u := range items {
		load := utilizationBar(u.Percent)
		if u.OverAllocated {
			load = color.RedString("%s over", load)
		}
		tw.AppendRow(table.Row{u.Name, fmt.Sprintf("%.0fh", u.AssignedHours), fmt.Sprintf("%.0fh", u.CapacityHours), load})
	}
	tw.Render()
}

func utilizationBar(percent float64) string {
	const width = 20
	filled := int(percent / 100 * width)
	return fmt.Sprintf("%s%s %3.0f%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), percent)
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Queue counters, recent requests and team load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Requests: %d  %s  %s  Designers: %d\n",
					d.TotalRequests,
					statusColor(domain.StatusPending)(fmt.Sprintf("Pending: %d", d.Pending)),
					statusColor(domain.StatusInProgress)(fmt.Sprintf("In Progress: %d", d.InProgress)),
					d.DesignersActive)
				tw := newTable()
				tw.SetTitle("Recent")
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Due"})
				for _, r := range d.Recent {
					tw.AppendRow(table.Row{r.ID, r.Title, statusColor(r.Status)(r.Status), r.DueDate})
				}
				tw.Render()
				renderUtilization(d.Team)
				return nil
			})
		},
	}
}

func shiftCmd() *cobra.Command {
	s := &cobra.Command{Use: "shift", Short: "Designer shift schedule"}
	s.AddCommand(shiftListCmd())
	s.AddCommand(shiftSetCmd())
	return s
}

func shiftListCmd() *cobra.Command {
	var designerID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListShifts(ctx, designerID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Date", "Designer", "Shift"})
				for _, s := range items {
					kind := string(s.Type)
					if s.Type == domain.ShiftOff {
						kind = color.HiBlackString(kind)
					}
					tw.AppendRow(table.Row{s.Date, s.DesignerID, kind})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&designerID, "designer", "", "designer filter")
	return cmd
}

func shiftSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <designer> <date> <Morning|Evening|Full|Off>",
		Short: "Set a designer's shift for a date",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ScheduleShift(ctx, args[0], args[1], domain.ShiftType(args[2]), actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("%s works %s on %s\n", s.DesignerID, s.Type, s.Date)
				return nil
			})
		},
	}
}
