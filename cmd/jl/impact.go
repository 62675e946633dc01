package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobline/internal/app"
	"jobline/internal/engine"
)

func bfCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "bf", Short: "Manage business functions"}
	var id, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a business function",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				bf, err := a.Engine.Catalog.CreateBusinessFunction(ctx, owner, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(bf)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "name")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List business functions with job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				items, err := a.Engine.Catalog.ListBusinessFunctions(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Jobs")
				for _, bf := range items {
					tw.AppendRow(table.Row{bf.ID, bf.Name, bf.JobCount})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a business function",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				bf, err := a.Engine.Catalog.UpdateBusinessFunction(ctx, owner, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(bf)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a business function; its jobs are detached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Catalog.DeleteBusinessFunction(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("business function %s not found", args[0])
				}
				fmt.Printf("Deleted business function %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func piCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pi", Short: "Manage performance indicators"}
	var in engine.PIInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a PI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				pi, err := a.Engine.Catalog.CreatePI(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(pi)
			})
		},
	}
	create.Flags().StringVar(&in.ID, "id", "", "id (generated when empty)")
	create.Flags().StringVar(&in.Name, "name", "", "name")
	create.Flags().Float64Var(&in.TargetValue, "target", 0, "target value")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List PIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				items, err := a.Engine.Catalog.ListPIs(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Target")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.TargetValue})
				}
				tw.Render()
				return nil
			})
		},
	})

	var name string
	var target float64
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a PI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := engine.PIPatch{Name: changedString(cmd, "name", name)}
			if cmd.Flags().Changed("target") {
				p.TargetValue = &target
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				pi, err := a.Engine.Catalog.UpdatePI(ctx, owner, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(pi)
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "name")
	update.Flags().Float64Var(&target, "target", 0, "target value")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a PI and its mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Catalog.DeletePI(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("pi %s not found", args[0])
				}
				fmt.Printf("Deleted PI %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func mappingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mapping", Short: "Map jobs to PIs"}
	var in engine.MappingInput
	var piTarget float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Map a job to a PI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("pi-target") {
				in.PITarget = &piTarget
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				m, err := a.Engine.Impact.CreateMapping(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	create.Flags().StringVar(&in.ID, "id", "", "id (generated when empty)")
	create.Flags().StringVar(&in.JobID, "job", "", "job id")
	create.Flags().StringVar(&in.PIID, "pi", "", "pi id")
	create.Flags().Float64Var(&piTarget, "pi-target", 0, "target for this job (defaults to the PI target)")
	create.Flags().Float64Var(&in.PIImpactValue, "impact", 0, "impact value")
	create.Flags().StringVar(&in.Notes, "notes", "", "notes")
	_ = create.MarkFlagRequired("job")
	_ = create.MarkFlagRequired("pi")
	cmd.AddCommand(create)

	var f engine.MappingFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				items, err := a.Engine.Impact.ListMappings(ctx, owner, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Job", "PI", "Target", "Impact")
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.JobName, m.PIName, m.PITarget, m.PIImpactValue})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.JobID, "job", "", "job filter")
	list.Flags().StringVar(&f.PIID, "pi", "", "pi filter")
	cmd.AddCommand(list)

	var target, impact float64
	var notes string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := engine.MappingPatch{Notes: changedString(cmd, "notes", notes)}
			if cmd.Flags().Changed("pi-target") {
				p.PITarget = &target
			}
			if cmd.Flags().Changed("impact") {
				p.PIImpactValue = &impact
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				m, err := a.Engine.Impact.UpdateMapping(ctx, owner, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	update.Flags().Float64Var(&target, "pi-target", 0, "target for this job")
	update.Flags().Float64Var(&impact, "impact", 0, "impact value")
	update.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Impact.DeleteMapping(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("mapping %s not found", args[0])
				}
				fmt.Printf("Deleted mapping %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func impactCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "impact", Short: "Impact aggregation"}
	cmd.AddCommand(&cobra.Command{
		Use:   "recalculate",
		Short: "Recompute every mapping's impact value with the configured rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				sum, err := a.Engine.Impact.RecalculateImpact(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("rule %s: %d mapping(s) evaluated, %d updated\n", sum.Rule, sum.Evaluated, sum.Updated)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "totals",
		Short: "Impact rolled up per PI, business function and QBO",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				totals, err := a.Engine.Impact.Totals(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(totals)
				}
				pis := newTable("PI", "Target", "Impact", "Progress", "Mappings")
				for _, p := range totals.PIs {
					pis.AppendRow(table.Row{p.Name, p.Target, p.Impact, fmt.Sprintf("%.0f%%", p.Progress*100), p.MappingCount})
				}
				pis.Render()
				bfs := newTable("Business function", "Jobs", "Impact")
				for _, b := range totals.BusinessFunctions {
					bfs.AppendRow(table.Row{b.Name, b.JobCount, b.Impact})
				}
				bfs.Render()
				qbos := newTable("QBO", "Target", "Impact", "Progress", "Mappings")
				for _, q := range totals.QBOs {
					qbos.AppendRow(table.Row{q.Name, q.Target, q.Impact, fmt.Sprintf("%.0f%%", q.Progress*100), q.MappingCount})
				}
				qbos.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "counts",
		Short: "Number of jobs per business function",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				counts, err := a.Engine.Impact.JobCountsByBusinessFunction(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable("Business function", "Jobs")
				for id, n := range counts {
					tw.AppendRow(table.Row{id, n})
				}
				tw.SortBy([]table.SortBy{{Number: 1, Mode: table.Asc}})
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}
