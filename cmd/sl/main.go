package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"salesline/internal/app"
	"salesline/internal/config"
	"salesline/internal/db"
	"salesline/internal/domain"
	"salesline/internal/pipeline"
	"salesline/internal/repo"
	"salesline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Salesline CLI",
	Long: `Salesline tracks sales projects through a forward-only pipeline:
Pre-Sales -> Quotation -> Confirmed -> Development -> Completed.
Every stage move, scope revision, advance payment, serial number and status
update lands in an append-only ledger, so the full history of a project is
always on record. The workspace is a .salesline directory holding the
database and an optional salesline.yml status catalog.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SALESLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(serialCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(stagesCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage pipeline projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var stage string
	var includeDeleted bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				items, err := e.ListProjects(ctx, repo.ProjectFilters{Stage: stage, IncludeDeleted: includeDeleted})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				counts, err := e.Repo.SerialCounts(ctx)
				if err != nil {
					return err
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project No", "Party", "Project", "Value", "Stage", "Serial?"})
				for _, p := range items {
					needsSerial := ""
					if p.CurrentStage == domain.StageConfirmed && counts[p.ProjectNo] == 0 {
						needsSerial = "needed"
					}
					tw.AppendRow(table.Row{p.ProjectNo, p.PartyName, p.ProjectName, p.ProjectValue.String(), string(p.CurrentStage), needsSerial})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "filter by stage")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include soft-deleted projects")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts pipeline.ProjectCreateOptions
	var value string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a project at Pre-Sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			v, err := decimal.NewFromString(value)
			if err != nil {
				return fmt.Errorf("--value must be a decimal number")
			}
			opts.ProjectValue = v
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.PartyName, "party", "", "party (customer) name")
	cmd.Flags().StringVar(&opts.ProjectName, "name", "", "project name")
	cmd.Flags().StringVar(&opts.ContactPerson, "contact", "", "contact person")
	cmd.Flags().StringVar(&opts.MobileNumber, "mobile", "", "mobile number")
	cmd.Flags().StringVar(&opts.EmailID, "email", "", "email")
	cmd.Flags().StringVar(&opts.AgentName, "agent", "", "agent name")
	cmd.Flags().StringVar(&value, "value", "0", "project value")
	cmd.Flags().StringVar(&opts.ScopeOfDevelopment, "scope", "", "scope of development")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee")
	_ = cmd.MarkFlagRequired("party")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-no>",
		Short: "Show project with full history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Project %s: %s (%s)\n", p.ProjectNo, p.ProjectName, p.PartyName)
				fmt.Printf("Stage: %s  Value: %s  Advance: %s\n", p.CurrentStage, p.ProjectValue, p.TotalAdvance())
				fmt.Printf("Scope (v%d): %s\n", p.ScopeHistory.Len(), p.ScopeOfDevelopment)
				if p.NeedsSerialNumber() {
					fmt.Println("Serial number: NEEDED")
				}
				if latest, ok := p.LatestStatus(); ok {
					fmt.Printf("Latest status: %s (%s)\n", latest.StatusCode, latest.CreatedDate)
				}
				fmt.Println("Stage history:")
				for _, h := range p.StageHistory.All() {
					fmt.Printf("  %s  %s  by %s\n", h.ChangedDate, h.Stage, h.ChangedBy)
				}
				return nil
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var stage, scope, remarks, party, name, value, assignedTo string
	cmd := &cobra.Command{
		Use:   "update <project-no>",
		Short: "Update project, advance its stage or revise scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := pipeline.ProjectUpdateOptions{
				ProjectNo:    args[0],
				StageRemarks: remarks,
				ActorID:      viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("stage") {
				opts.Stage = &stage
			}
			if cmd.Flags().Changed("scope") {
				opts.Scope = &scope
			}
			if cmd.Flags().Changed("party") {
				opts.PartyName = &party
			}
			if cmd.Flags().Changed("name") {
				opts.ProjectName = &name
			}
			if cmd.Flags().Changed("assigned-to") {
				opts.AssignedTo = &assignedTo
			}
			if cmd.Flags().Changed("value") {
				v, err := decimal.NewFromString(value)
				if err != nil {
					return fmt.Errorf("--value must be a decimal number")
				}
				opts.ProjectValue = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "move to stage (forward only)")
	cmd.Flags().StringVar(&scope, "scope", "", "revised scope of development")
	cmd.Flags().StringVar(&remarks, "remarks", "", "stage change remarks")
	cmd.Flags().StringVar(&party, "party", "", "party name")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&value, "value", "", "project value")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-no>",
		Short: "Soft-delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				return e.DeleteProject(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func advanceCmd() *cobra.Command {
	adv := &cobra.Command{Use: "advance", Short: "Record and list advance payments"}
	adv.AddCommand(advanceAddCmd())
	adv.AddCommand(advanceListCmd())
	return adv
}

func advanceAddCmd() *cobra.Command {
	var amount, date, tally string
	cmd := &cobra.Command{
		Use:   "add <project-no>",
		Short: "Record an advance payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount must be a decimal number")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				a, err := e.RecordAdvance(ctx, pipeline.AdvanceOptions{
					ProjectNo:        args[0],
					Amount:           v,
					Date:             date,
					TallyEntryNumber: tally,
					ActorID:          viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(a)
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount received")
	cmd.Flags().StringVar(&date, "date", "", "payment date (RFC3339, defaults to now)")
	cmd.Flags().StringVar(&tally, "tally-entry", "", "tally entry number")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func advanceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-no>",
		Short: "List advance payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p.Advances.All())
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Amount", "Date", "Tally Entry", "Received By"})
				for _, a := range p.Advances.All() {
					tw.AppendRow(table.Row{a.Amount.String(), a.Date, a.TallyEntryNumber, a.ReceivedBy})
				}
				tw.AppendFooter(table.Row{p.TotalAdvance().String(), "", "", "total"})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func serialCmd() *cobra.Command {
	ser := &cobra.Command{Use: "serial", Short: "Record and list serial numbers"}
	ser.AddCommand(serialAddCmd())
	ser.AddCommand(serialListCmd())
	return ser
}

func serialAddCmd() *cobra.Command {
	var serial, version string
	cmd := &cobra.Command{
		Use:   "add <project-no>",
		Short: "Record a delivered serial number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				s, err := e.RecordSerial(ctx, pipeline.SerialOptions{
					ProjectNo:    args[0],
					SerialNumber: serial,
					Version:      version,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(s)
			})
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "serial number")
	cmd.Flags().StringVar(&version, "version", "", "software version")
	_ = cmd.MarkFlagRequired("serial")
	return cmd
}

func serialListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-no>",
		Short: "List serial numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(p.Serials.All())
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	st := &cobra.Command{Use: "status", Short: "Post and list development status updates"}
	st.AddCommand(statusAddCmd())
	st.AddCommand(statusListCmd())
	st.AddCommand(statusMasterCmd())
	return st
}

func statusAddCmd() *cobra.Command {
	var code, notes, compiledFile string
	var attachments []string
	cmd := &cobra.Command{
		Use:   "add <project-no>",
		Short: "Post a status update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				u, err := e.RecordStatus(ctx, pipeline.StatusOptions{
					ProjectNo:       args[0],
					StatusCode:      code,
					Notes:           notes,
					AttachmentURLs:  attachments,
					CompiledFileURL: compiledFile,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(u)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "status code (see 'sl status master')")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringArrayVar(&attachments, "attachment", []string{}, "attachment URL (repeatable)")
	cmd.Flags().StringVar(&compiledFile, "compiled-file", "", "compiled file URL (required for TestingStarted)")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("notes")
	return cmd
}

func statusListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-no>",
		Short: "List status updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				p, err := e.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(p.StatusUpdates.All())
			})
		},
	}
	return cmd
}

func statusMasterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Show the configured status catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config.Statuses.Catalog)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Description", "Compiled File"})
				for _, code := range e.Config.StatusCodes() {
					entry := e.Config.Statuses.Catalog[code]
					required := ""
					if e.Config.RequiresCompiledFile(code) {
						required = "required"
					}
					tw.AppendRow(table.Row{code, entry.Description, required})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func stagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				return printJSON(domain.Stages)
			}
			for i, s := range domain.Stages {
				fmt.Printf("%d. %s\n", i+1, s)
			}
			return nil
		},
	}
	return cmd
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Project counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				counts, err := e.Repo.CountProjectsByStage(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				for _, s := range domain.Stages {
					fmt.Printf("%-12s %d\n", s, counts[string(s)])
				}
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				return printJSONOrIndent(e.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default salesline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logC := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logC.AddCommand(logTailCmd())
	return logC
}

func logTailCmd() *cobra.Command {
	var n int
	var projectNo, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, projectNo, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&projectNo, "project", "", "project number filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name, actor string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			secret := uuid.New().String() + uuid.New().String()
			key := domain.APIKey{
				ID:        uuid.New().String(),
				ActorID:   actor,
				Name:      name,
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrIndent(map[string]string{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as (defaults to --actor-id)")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e pipeline.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("SALESLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("SALESLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header)")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(a.Engine)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Salesline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, pipeline.Engine) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func printJSONOrIndent(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
