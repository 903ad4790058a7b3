package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"meetcast/internal/app"
	"meetcast/internal/config"
	"meetcast/internal/domain"
	"meetcast/internal/logging"
	"meetcast/internal/replay"
	"meetcast/internal/repo"
	"meetcast/internal/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mc",
	Short: "meetcast schedules meetings around the weather and your calendar",
	Long: `meetcast turns a free-text meeting request into one decision.
- Extraction: city, time, duration and attendees are read from the text; a missing piece triggers one clarification round.
- Assessment: rain risk and calendar availability are checked concurrently; an unavailable service degrades to a note.
- Decision: a conflict proposes alternatives, heavy rain shifts the time or suggests indoors, otherwise the event is created.
- Journal: every run is recorded in .meetcast/meetcast.db; browse it with 'mc runs'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load(".env")
	viper.SetEnvPrefix("MEETCAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory holding meetcast.yml and .meetcast/")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/meetcast.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("mode", "", "capability mode override: mock or remote")
	rootCmd.PersistentFlags().String("log-level", "", "log level override")
	rootCmd.PersistentFlags().String("log-format", "", "log format override: json or console")
	for _, name := range []string{"workspace", "config", "json", "mode", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	// Secrets and endpoints come from the environment only.
	_ = viper.BindEnv("calendar-url")
	_ = viper.BindEnv("calendar-token")
	_ = viper.BindEnv("timezone")
}

func registerCommands() {
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(versionCmd())
}

func scheduleCmd() *cobra.Command {
	var answer, now string
	var interactive bool
	cmd := &cobra.Command{
		Use:   "schedule <request>",
		Short: "Evaluate a meeting request",
		Example: `  mc schedule "Friday 14:00 Taipei meet Alice 60min"
  mc schedule "meet Alice tomorrow" --answer "2pm in Taipei"
  mc schedule "meet Alice tomorrow" --interactive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if now != "" {
					at, err := time.Parse(time.RFC3339, now)
					if err != nil {
						return fmt.Errorf("invalid --now: %w", err)
					}
					a.Engine.Now = func() time.Time { return at }
				}
				var ans *string
				if cmd.Flags().Changed("answer") {
					ans = &answer
				}
				sum := a.Engine.Run(ctx, text, ans)
				if interactive && ans == nil && sum.Status == domain.StatusClarificationNeeded {
					reply, err := prompt(cmd.InOrStdin(), cmd.ErrOrStderr(), sum)
					if err != nil {
						return err
					}
					sum = a.Engine.Run(ctx, text, &reply)
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				renderSummary(os.Stdout, sum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&answer, "answer", "", "reply to a previous clarification request for the same text")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask for missing details on stdin")
	cmd.Flags().StringVar(&now, "now", "", "reference time (RFC3339) for resolving relative dates")
	return cmd
}

func prompt(in io.Reader, out io.Writer, sum domain.EventSummary) (string, error) {
	fmt.Fprintln(out, sum.Reason)
	if sum.Notes != "" {
		fmt.Fprintln(out, sum.Notes)
	}
	fmt.Fprint(out, "> ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = server.Addr(a.Config)
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Repo:     a.Repo,
					Metrics:  a.Metrics,
					Log:      a.Log,
					BasePath: basePath,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info().Str("addr", addr).Str("mode", a.Config.Capabilities.Mode).Msg("serving")
				fmt.Printf("Serving meetcast API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Browse the run journal"}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var limit int
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRuns(ctx, repo.RunFilters{Status: status, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderRuns(os.Stdout, items)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func runsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its stage transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				run, err := r.GetRun(ctx, args[0])
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(run)
				}
				renderRun(os.Stdout, run)
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect meetcast.yml",
		Long:  "Config selects mock or remote capabilities, the mock rules, pipeline timeouts and search limits, the journal and the server address.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Capabilities.Calendar.Token != "" {
				cfg.Capabilities.Calendar.Token = "********"
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default meetcast.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func replayCmd() *cobra.Command {
	var file string
	var ci bool
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL dataset and report pass/fail per case",
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := replay.LoadFile(file)
			if err != nil {
				return err
			}
			var report replay.Report
			err = withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report = replay.Evaluate(ctx, a.Engine, cases)
				return nil
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				renderReport(os.Stdout, report)
			}
			if ci && report.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", report.Failed, len(report.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "datasets/golden.jsonl", "JSONL dataset")
	cmd.Flags().BoolVar(&ci, "ci", false, "exit non-zero when any case fails")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("meetcast", version)
		},
	}
}

// --- helpers ---

// loadConfig reads the config file, then applies flag and MEETCAST_* overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("mode"); v != "" {
		cfg.Capabilities.Mode = v
	}
	if v := viper.GetString("calendar-url"); v != "" {
		cfg.Capabilities.Calendar.BaseURL = v
	}
	if v := viper.GetString("calendar-token"); v != "" {
		cfg.Capabilities.Calendar.Token = v
	}
	if v := viper.GetString("timezone"); v != "" {
		cfg.Pipeline.Timezone = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Options{
		Service: "meetcast",
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Log:       newLogger(cfg),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		if a.Repo == nil {
			return errors.New("journal is disabled in config (journal.enabled: false)")
		}
		return fn(ctx, *a.Repo)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
