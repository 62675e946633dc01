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

// assigneeCmd manages the people tasks are assigned to. "owner" is already
// the account, so the people registry lives under its own name.
func assigneeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "assignee", Short: "Manage the people tasks can be assigned to"}
	var id, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				o, err := a.Engine.Catalog.CreateTaskOwner(ctx, owner, id, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "name")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List people",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				items, err := a.Engine.Catalog.ListTaskOwners(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name")
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Name})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a person",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				o, err := a.Engine.Catalog.UpdateTaskOwner(ctx, owner, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a person; their tasks become unassigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Catalog.DeleteTaskOwner(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("assignee %s not found", args[0])
				}
				fmt.Printf("Deleted assignee %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func qboCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "qbo", Short: "Manage quarterly business objectives"}
	var in engine.QBOInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a QBO",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				q, err := a.Engine.Catalog.CreateQBO(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
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
		Short: "List QBOs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				items, err := a.Engine.Catalog.ListQBOs(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Target")
				for _, q := range items {
					tw.AppendRow(table.Row{q.ID, q.Name, q.TargetValue})
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
		Short: "Update a QBO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := engine.QBOPatch{Name: changedString(cmd, "name", name)}
			if cmd.Flags().Changed("target") {
				p.TargetValue = &target
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				q, err := a.Engine.Catalog.UpdateQBO(ctx, owner, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(q)
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "name")
	update.Flags().Float64Var(&target, "target", 0, "target value")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a QBO and its PI mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Catalog.DeleteQBO(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("qbo %s not found", args[0])
				}
				fmt.Printf("Deleted QBO %s\n", args[0])
				return nil
			})
		},
	})
	cmd.AddCommand(qboMapCmd())
	return cmd
}

func qboMapCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "map", Short: "Map PIs to QBOs"}
	var in engine.QBOMappingInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Map a PI to a QBO",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				m, err := a.Engine.Impact.CreateQBOMapping(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	create.Flags().StringVar(&in.ID, "id", "", "id (generated when empty)")
	create.Flags().StringVar(&in.PIID, "pi", "", "pi id")
	create.Flags().StringVar(&in.QBOID, "qbo", "", "qbo id")
	create.Flags().Float64Var(&in.QBOImpact, "impact", 0, "QBO impact of full PI progress")
	create.Flags().StringVar(&in.Notes, "notes", "", "notes")
	_ = create.MarkFlagRequired("pi")
	_ = create.MarkFlagRequired("qbo")
	cmd.AddCommand(create)

	var f engine.QBOMappingFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List PI to QBO mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				items, err := a.Engine.Impact.ListQBOMappings(ctx, owner, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "PI", "QBO", "Impact")
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.PIName, m.QBOName, m.QBOImpact})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.PIID, "pi", "", "pi filter")
	list.Flags().StringVar(&f.QBOID, "qbo", "", "qbo filter")
	cmd.AddCommand(list)

	var impact float64
	var notes string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a PI to QBO mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := engine.QBOMappingPatch{Notes: changedString(cmd, "notes", notes)}
			if cmd.Flags().Changed("impact") {
				p.QBOImpact = &impact
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				m, err := a.Engine.Impact.UpdateQBOMapping(ctx, owner, args[0], p)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	update.Flags().Float64Var(&impact, "impact", 0, "QBO impact of full PI progress")
	update.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a PI to QBO mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Impact.DeleteQBOMapping(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("qbo mapping %s not found", args[0])
				}
				fmt.Printf("Deleted QBO mapping %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}
