package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobline/internal/app"
	"jobline/internal/domain"
	"jobline/internal/engine"
)

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage jobs"}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobUpdateCmd())
	job.AddCommand(jobNextCmd())
	job.AddCommand(jobDoneCmd())
	job.AddCommand(jobDeleteCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var in engine.JobInput
	var bf, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.BusinessFunctionID = optionalString(bf)
			in.DueDate = optionalString(due)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				j, err := a.Engine.Jobs.Create(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&in.Title, "title", "", "job title")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&bf, "bf", "", "business function id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&in.IsDone, "done", false, "create already done")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobListCmd() *cobra.Command {
	var done, bf string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			doneFilter, err := parseOptionalBool("done", done)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				jobs, err := a.Engine.Jobs.List(ctx, owner, engine.JobFilter{Done: doneFilter, BusinessFunctionID: bf})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := newTable("ID", "Title", "Done", "Business function", "Next task", "Tasks")
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Title, j.IsDone, deref(j.BusinessFunctionID), deref(j.NextTaskID), len(j.TaskIDs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&done, "done", "", "filter by done state (true|false)")
	cmd.Flags().StringVar(&bf, "bf", "", "business function filter")
	return cmd
}

func jobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				j, err := a.Engine.Jobs.Get(ctx, owner, args[0])
				if err != nil {
					return err
				}
				tasks, err := a.Engine.Tasks.ListByJob(ctx, owner, j.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"job": j, "tasks": tasks})
				}
				fmt.Printf("%s  %s  done=%t\n", j.ID, j.Title, j.IsDone)
				printTasks(tasks)
				return nil
			})
		},
	}
}

func jobUpdateCmd() *cobra.Command {
	var title, notes, bf, due, next, done, order string
	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Update a job",
		Long:  "Only flags that are set are applied. An empty --bf or --due clears the field; --next none clears the next task.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			isDone, err := parseOptionalBool("done", done)
			if err != nil {
				return err
			}
			p := engine.JobPatch{
				Title:              changedString(cmd, "title", title),
				Notes:              changedString(cmd, "notes", notes),
				BusinessFunctionID: changedString(cmd, "bf", bf),
				DueDate:            changedString(cmd, "due", due),
				IsDone:             isDone,
				NextTaskID:         changedString(cmd, "next", next),
			}
			if cmd.Flags().Changed("order") {
				ids := splitIDs(order)
				p.TaskIDs = &ids
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				j, err := a.Engine.Jobs.Update(ctx, owner, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&bf, "bf", "", "business function id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&next, "next", "", "next task id or none")
	cmd.Flags().StringVar(&done, "done", "", "true|false")
	cmd.Flags().StringVar(&order, "order", "", "comma separated task ids in the new order")
	return cmd
}

func jobNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <job-id> <task-id|none>",
		Short: "Set or clear the job's next task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				j, err := engine.RetryConflict(ctx, func() (domain.Job, error) {
					return a.Engine.Tasks.SetNextTask(ctx, owner, args[0], args[1])
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
}

func jobDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <job-id>...",
		Short: "Mark jobs done (or not done with --undo)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				n, err := a.Engine.Jobs.ToggleDone(ctx, owner, args, !undo)
				if err != nil {
					return err
				}
				fmt.Printf("%d job(s) changed\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark not done")
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job with its tasks and mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Jobs.Delete(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s not found", args[0])
				}
				fmt.Printf("Deleted job %s\n", args[0])
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var in engine.TaskInput
	var taskOwner, date, focus, joy string
	var hours float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Append a task to a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Owner = optionalString(taskOwner)
			in.Date = optionalString(date)
			if cmd.Flags().Changed("hours") {
				in.RequiredHours = &hours
			}
			if focus != "" {
				l := domain.Level(focus)
				in.FocusLevel = &l
			}
			if joy != "" {
				l := domain.Level(joy)
				in.JoyLevel = &l
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				t, err := a.Engine.Tasks.Create(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&in.JobID, "job", "", "job id")
	cmd.Flags().StringVar(&in.Title, "title", "", "task title")
	cmd.Flags().StringVar(&taskOwner, "assignee", "", "assignee id (see jl assignee)")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "required hours")
	cmd.Flags().StringVar(&focus, "focus", "", "focus level (High|Medium|Low)")
	cmd.Flags().StringVar(&joy, "joy", "", "joy level (High|Medium|Low)")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	cmd.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().BoolVar(&in.Completed, "completed", false, "create already completed")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f engine.TaskFilter
	var completed string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseOptionalBool("completed", completed)
			if err != nil {
				return err
			}
			f.Completed = c
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				tasks, err := a.Engine.Tasks.List(ctx, owner, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.JobID, "job", "", "job filter")
	cmd.Flags().StringVar(&completed, "completed", "", "filter by completion (true|false)")
	cmd.Flags().StringVar(&f.Tag, "tag", "", "tag filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>...",
		Short: "Show one or more tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				if len(args) == 1 {
					t, err := a.Engine.Tasks.Get(ctx, owner, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(t)
				}
				tasks, err := a.Engine.Tasks.GetMany(ctx, owner, args)
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var job, title, taskOwner, date, focus, joy, notes, completed string
	var hours float64
	var clearHours bool
	var tags []string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task",
		Long:  "Only flags that are set are applied. An empty --assignee, --date, --focus or --joy clears the field.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := parseOptionalBool("completed", completed)
			if err != nil {
				return err
			}
			p := engine.TaskPatch{
				JobID:              changedString(cmd, "job", job),
				Title:              changedString(cmd, "title", title),
				Owner:              changedString(cmd, "assignee", taskOwner),
				Date:               changedString(cmd, "date", date),
				Notes:              changedString(cmd, "notes", notes),
				Completed:          done,
				ClearRequiredHours: clearHours,
			}
			if cmd.Flags().Changed("hours") {
				p.RequiredHours = &hours
			}
			if v := changedString(cmd, "focus", focus); v != nil {
				l := domain.Level(*v)
				p.FocusLevel = &l
			}
			if v := changedString(cmd, "joy", joy); v != nil {
				l := domain.Level(*v)
				p.JoyLevel = &l
			}
			if cmd.Flags().Changed("tag") {
				p.Tags = &tags
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				t, err := a.Engine.Tasks.Update(ctx, owner, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "move to job")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&taskOwner, "assignee", "", "assignee id (see jl assignee)")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "required hours")
	cmd.Flags().BoolVar(&clearHours, "clear-hours", false, "clear required hours")
	cmd.Flags().StringVar(&focus, "focus", "", "focus level (High|Medium|Low)")
	cmd.Flags().StringVar(&joy, "joy", "", "joy level (High|Medium|Low)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "replace tags (repeatable)")
	cmd.Flags().StringVar(&completed, "completed", "", "true|false")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <task-id>",
		Short: "Complete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done := true
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				t, err := a.Engine.Tasks.Update(ctx, owner, args[0], engine.TaskPatch{Completed: &done})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Tasks.Delete(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %s not found", args[0])
				}
				fmt.Printf("Deleted task %s\n", args[0])
				return nil
			})
		},
	}
}

func printTasks(tasks []domain.Task) {
	tw := newTable("ID", "Job", "Title", "Done", "Next", "Hours", "Tags")
	for _, t := range tasks {
		hours := ""
		if t.RequiredHours != nil {
			hours = fmt.Sprintf("%g", *t.RequiredHours)
		}
		next := ""
		if t.NextTask {
			next = "*"
		}
		tw.AppendRow(table.Row{t.ID, t.JobID, t.Title, t.Completed, next, hours, strings.Join(t.Tags, ",")})
	}
	tw.Render()
}

func splitIDs(s string) []string {
	ids := []string{}
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
