package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"designflow/internal/domain"
	"designflow/internal/engine"
	"designflow/internal/repo"
)

func statusColor(s domain.Status) func(a ...interface{}) string {
	switch s {
	case domain.StatusPending:
		return color.New(color.FgYellow).SprintFunc()
	case domain.StatusInProgress:
		return color.New(color.FgCyan).SprintFunc()
	case domain.StatusReview:
		return color.New(color.FgMagenta).SprintFunc()
	case domain.StatusCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case domain.StatusBlocked:
		return color.New(color.FgRed).SprintFunc()
	default:
		return fmt.Sprint
	}
}

func priorityColor(p domain.Priority) func(a ...interface{}) string {
	switch p {
	case domain.PriorityUrgent:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case domain.PriorityHigh:
		return color.New(color.FgRed).SprintFunc()
	case domain.PriorityLow:
		return color.New(color.FgHiBlack).SprintFunc()
	default:
		return fmt.Sprint
	}
}

func designerCmd() *cobra.Command {
	d := &cobra.Command{Use: "designer", Short: "Manage designers"}
	d.AddCommand(designerListCmd())
	d.AddCommand(designerCreateCmd())
	return d
}

func designerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List designers with their load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDesigners(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Skills", "Load"})
				for _, d := range items {
					load := fmt.Sprintf("%.0f/%.0fh", d.AssignedHours, d.CapacityHours)
					if d.AssignedHours > d.CapacityHours {
						load = color.RedString(load)
					}
					tw.AppendRow(table.Row{d.ID, d.Name, d.Role, strings.Join(d.Skills, ", "), load})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func designerCreateCmd() *cobra.Command {
	var opts engine.DesignerCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a designer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				d, err := e.CreateDesigner(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Created designer %s (%s)\n", d.ID, d.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "designer id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", "", "job title")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "avatar URL")
	cmd.Flags().StringSliceVar(&opts.Skills, "skill", nil, "skill tag (repeatable)")
	cmd.Flags().Float64Var(&opts.CapacityHours, "capacity", 40, "weekly capacity in hours")
	return cmd
}

func requestCmd() *cobra.Command {
	r := &cobra.Command{Use: "request", Short: "Manage design requests"}
	r.AddCommand(requestListCmd())
	r.AddCommand(requestSubmitCmd())
	r.AddCommand(requestShowCmd())
	return r
}

func requestListCmd() *cobra.Command {
	var status, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRequests(ctx, repo.RequestFilter{Status: domain.Status(status), AssignedTo: assignee})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Priority", "Status", "Designer", "Due", "Est"})
				for _, r := range items {
					owner := "-"
					if r.AssignedTo != nil {
						owner = *r.AssignedTo
					}
					tw.AppendRow(table.Row{
						r.ID, r.Title, r.Type,
						priorityColor(r.Priority)(r.Priority),
						statusColor(r.Status)(r.Status),
						owner, r.DueDate, fmt.Sprintf("%.0fh", r.EstimatedHours),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&assignee, "designer", "", "designer filter")
	return cmd
}

func requestSubmitCmd() *cobra.Command {
	var draft engine.RequestDraft
	var priority string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				draft.Priority = domain.Priority(priority)
				draft.ActorID = actorID()
				r, err := e.SubmitRequest(ctx, draft)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Printf("Submitted %s: %s [%s]\n", r.ID, r.Title, statusColor(r.Status)(r.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&draft.ID, "id", "", "request id (generated when empty)")
	cmd.Flags().StringVar(&draft.Title, "title", "", "title")
	cmd.Flags().StringVar(&draft.Client, "client", "", "client or team")
	cmd.Flags().StringVar(&draft.Requestor, "requestor", "", "person asking")
	cmd.Flags().StringVar(&draft.Description, "description", "", "details")
	cmd.Flags().StringVar(&draft.Type, "type", "", "design type, e.g. Web Design")
	cmd.Flags().StringVar(&draft.BusinessFunction, "function", "", "business function, e.g. Marketing")
	cmd.Flags().StringVar(&priority, "priority", "", "Low, Medium, High or Urgent")
	cmd.Flags().Float64Var(&draft.EstimatedHours, "estimate", 0, "estimated hours")
	cmd.Flags().StringVar(&draft.DueDate, "due", "", "due date YYYY-MM-DD")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <request>",
		Short: "Show a request and its feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.Repo.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				bold := color.New(color.Bold).SprintFunc()
				fmt.Printf("%s  %s\n", bold(r.ID), r.Title)
				fmt.Printf("  Status:   %s\n", statusColor(r.Status)(r.Status))
				fmt.Printf("  Priority: %s\n", priorityColor(r.Priority)(r.Priority))
				fmt.Printf("  Client:   %s (%s)\n", r.Client, r.Requestor)
				fmt.Printf("  Type:     %s / %s\n", r.Type, r.BusinessFunction)
				if r.AssignedTo != nil {
					fmt.Printf("  Designer: %s since %s\n", *r.AssignedTo, *r.StartDate)
				}
				fmt.Printf("  Due:      %s (%.0fh)\n", r.DueDate, r.EstimatedHours)
				if r.Description != "" {
					fmt.Printf("\n%s\n", r.Description)
				}
				if len(r.Feedback) > 0 {
					tw := newTable()
					tw.AppendHeader(table.Row{"Date", "Author", "Role", "Type", "Content"})
					for _, f := range r.Feedback {
						tw.AppendRow(table.Row{f.Date, f.Author, f.Role, f.Type, f.Content})
					}
					fmt.Println()
					tw.Render()
				}
				return nil
			})
		},
	}
}

func assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <request> <designer>",
		Short: "Assign a request to a designer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Assign(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Assigned %s to %s (+%.0fh, now %.0f/%.0fh)\n",
					res.Request.ID, res.Designer.Name, res.Hours, res.Designer.AssignedHours, res.Designer.CapacityHours)
				return nil
			})
		},
	}
}

func feedbackCmd() *cobra.Command {
	var opts engine.FeedbackOptions
	var fbType, role string
	cmd := &cobra.Command{
		Use:   "feedback <request>",
		Short: "Record feedback; Approval completes, Change Request reopens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.RequestID = args[0]
				opts.Type = domain.FeedbackType(fbType)
				opts.Role = domain.Role(role)
				opts.ActorID = actorID()
				r, err := e.RecordFeedback(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Printf("%s is now %s\n", r.ID, statusColor(r.Status)(r.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fbType, "type", string(domain.FeedbackGeneral), "General, Approval or Change Request")
	cmd.Flags().StringVar(&opts.Content, "content", "", "feedback text")
	cmd.Flags().StringVar(&opts.Author, "author", "", "author name (defaults to --actor-id)")
	cmd.Flags().StringVar(&role, "role", "", "Client, Designer or Manager")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <request> <status>",
		Short: "Override a request's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.SetStatus(ctx, args[0], domain.Status(args[1]), actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(r)
				}
				fmt.Printf("%s is now %s\n", r.ID, statusColor(r.Status)(r.Status))
				return nil
			})
		},
	}
}

func suggestCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Ask the AI advisor for assignment suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sugs, err := e.RequestSuggestions(ctx)
				if err != nil {
					return err
				}
				var applied []engine.ApplyResult
				if apply {
					for _, s := range sugs {
						res, err := e.ApplySuggestion(ctx, s, actorID())
						if err != nil {
							return err
						}
						applied = append(applied, res)
					}
				}
				if viper.GetBool("json") {
					if apply {
						return printJSON(applied)
					}
					return printJSON(sugs)
				}
				if len(sugs) == 0 {
					fmt.Println("No suggestions.")
					return nil
				}
				tw := newTable()
				header := table.Row{"Request", "Designer", "Rationale"}
				if apply {
					header = append(header, "Result")
				}
				tw.AppendHeader(header)
				for i, s := range sugs {
					row := table.Row{s.RequestID, s.DesignerID, s.Rationale}
					if apply {
						res := applied[i]
						if res.Applied {
							row = append(row, color.GreenString("applied"))
						} else {
							row = append(row, color.YellowString("skipped: %s", res.Reason))
						}
					}
					tw.AppendRow(row)
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "apply every suggestion that is still valid")
	return cmd
}
