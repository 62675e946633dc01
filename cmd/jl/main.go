package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"jobline/internal/app"
	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/domain"
	"jobline/internal/migrate"
	"jobline/internal/repo"
	"jobline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "jl",
	Short: "Jobline CLI",
	Long: `Jobline tracks jobs, the tasks that make them up and how much each job moves
your performance indicators.
- Job: a unit of work with ordered tasks and at most one next task.
- Task: a step inside a job. Completing or deleting the next task clears it.
- Business function: a grouping of jobs.
- PI: a performance indicator with a target value.
- Mapping: how much one job contributes toward one PI.
- Event log: every change, view with 'jl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return app.LoadEnv(workspace)
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("JOBLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("owner", "", "owner id (defaults to JOBLINE_OWNER)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("owner", rootCmd.PersistentFlags().Lookup("owner"))
}

func registerCommands() {
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(bfCmd())
	rootCmd.AddCommand(piCmd())
	rootCmd.AddCommand(mappingCmd())
	rootCmd.AddCommand(qboCmd())
	rootCmd.AddCommand(assigneeCmd())
	rootCmd.AddCommand(impactCmd())
	rootCmd.AddCommand(ownerCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(dbCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// withApp opens the workspace and resolves the owner every engine call is
// scoped to.
func withApp(ctx context.Context, fn func(context.Context, *app.App, string) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	owner, err := app.ResolveOwner(viper.GetString("owner"))
	if err != nil {
		return err
	}
	return fn(ctx, a, owner)
}

func ownerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "owner", Short: "Select the default owner"}
	cmd.AddCommand(&cobra.Command{
		Use:   "use <owner-id>",
		Short: "Write JOBLINE_OWNER to the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := strings.TrimSpace(args[0])
			if owner == "" {
				return fmt.Errorf("owner id required")
			}
			if err := app.SetEnvValue(viper.GetString("workspace"), app.OwnerEnv, owner); err != nil {
				return err
			}
			fmt.Printf("Default owner set to %s\n", owner)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := app.ResolveOwner(viper.GetString("owner"))
			if err != nil {
				return err
			}
			fmt.Println(owner)
			return nil
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	var force bool
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Write a default jobline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	gen.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(gen)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate jobline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cmd
}

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Database maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			st, err := migrate.CurrentStatus(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(st)
			}
			fmt.Printf("%s: schema %d of %d\n", db.Path(workspace), st.Current, st.Latest)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.MigrateContext(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Println("migrated")
			return nil
		},
	})
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys for the owner"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				secret := "jl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					OwnerID:   owner,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": secret})
				}
				fmt.Printf("API key %s created. Store it now, it is not shown again:\n%s\n", key.ID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				ok, err := a.Engine.Repo.DeleteAPIKey(ctx, owner, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("api key %s not found", args[0])
				}
				fmt.Printf("Deleted API key %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, owner string) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, repo.EventFilters{
					OwnerID:    owner,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Payload")
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	cmd.AddCommand(tail)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowOwnerHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
				addr = a.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:        a.Config.JWTSecret(),
				AllowOwnerHeader: allowOwnerHeader,
				AllowDevLogin:    devLogin,
				Logger:           a.Log,
			}
			if authCfg.JWTSecret == "" {
				a.Log.Warn("no jwt secret configured; only API keys will authenticate", "env", a.Config.Auth.JWTSecretEnv)
			}
			handler, err := server.New(server.Config{
				Engine:      a.Engine,
				BasePath:    basePath,
				Auth:        authCfg,
				CORSOrigins: a.Config.Server.CORSOrigins,
				Logger:      a.Log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Log.Info("serving jobline api", "addr", addr, "base_path", basePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowOwnerHeader, "allow-owner-header", false, "DEV ONLY: trust X-Owner-Id without credentials")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "DEV ONLY: expose POST auth/dev/login, which mints a token for any owner")
	return cmd
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

// printJSONOrTable renders a single record as a field/value table, or JSON
// with --json. Values that are not objects always print as JSON.
func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var fields map[string]any
	if json.Unmarshal(raw, &fields) != nil {
		return printJSON(v)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable("Field", "Value")
	for _, k := range keys {
		val := fields[k]
		switch val.(type) {
		case []any, map[string]any:
			b, _ := json.Marshal(val)
			val = string(b)
		}
		tw.AppendRow(table.Row{k, val})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// changedString returns the flag value only when the user set it, so an
// explicit empty value can clear a field.
func changedString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func parseOptionalBool(name, v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("--%s must be true or false", name)
	}
	return &b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
