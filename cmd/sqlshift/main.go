package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sqlshift/sqlshift/internal/config"
	"github.com/sqlshift/sqlshift/internal/corrector"
	"github.com/sqlshift/sqlshift/internal/extract"
	"github.com/sqlshift/sqlshift/internal/ingest"
	"github.com/sqlshift/sqlshift/internal/orchestrator"
	"github.com/sqlshift/sqlshift/internal/report"
	"github.com/sqlshift/sqlshift/internal/retriever"
	"github.com/sqlshift/sqlshift/internal/store"
	"github.com/sqlshift/sqlshift/internal/translate"
	"github.com/sqlshift/sqlshift/internal/verify"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sqlshift",
		Short: "Migrate SQL workloads to PostgreSQL",
		Long: "sqlshift drives SQL files through rule-based translation, optional AI-assisted\n" +
			"correction, and transactional verification against a live PostgreSQL target,\n" +
			"with resumable per-asset progress in a local state store.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(portCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resetCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.New(cfg.Project.DBFile)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return s, nil
}

// signalContext is cancelled on SIGINT/SIGTERM so in-flight work stops
// at the next stage boundary.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func ingestCmd() *cobra.Command {
	var watch, reselect bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scan the source directory into the state store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := ingest.Scan(s, cfg.Project.Name, cfg.Project.SourceDir, reselect)
			if err != nil {
				return err
			}
			fmt.Printf("synced %d files from %s\n", n, cfg.Project.SourceDir)

			if !watch {
				return nil
			}
			ctx, cancel := signalContext()
			defer cancel()
			fmt.Printf("watching %s for changes (ctrl-c to stop)\n", cfg.Project.SourceDir)
			return ingest.NewWatcher(s, cfg.Project.Name, cfg.Project.SourceDir).Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep watching the source directory and re-ingest changes")
	cmd.Flags().BoolVar(&reselect, "reselect", false, "Reselect every scanned file, overriding manual deselection")
	return cmd
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extract source-database schema metadata into the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Source.URI == "" {
				return fmt.Errorf("database.source.uri is required for extraction")
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ex, err := extract.Open(cfg.Database.Source.Type, cfg.Database.Source.URI)
			if err != nil {
				return err
			}
			defer ex.Close()

			ctx, cancel := signalContext()
			defer cancel()

			log.Printf("extracting metadata from %s source %s",
				cfg.Database.Source.Type, config.RedactDSN(cfg.Database.Source.URI))
			n, err := extract.Sync(ctx, ex, s, cfg.Project.Name, cfg.Database.Source.Schemas)
			if err != nil {
				return err
			}
			fmt.Printf("cached %d schema objects\n", n)
			return nil
		},
	}
}

func portCmd() *cobra.Command {
	var changedOnly bool

	cmd := &cobra.Command{
		Use:   "port",
		Short: "Run the migration pipeline over all selected assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext()
			defer cancel()

			v, err := newVerifier(ctx, cfg)
			if err != nil {
				return err
			}
			defer v.Close()

			var co corrector.Corrector
			if cfg.Corrector.Enabled {
				co = corrector.NewClient(cfg.Corrector.BaseURL, cfg.Corrector.Model, cfg.Corrector.Temperature)
				log.Printf("corrector enabled (model=%s)", cfg.Corrector.Model)
			}

			o := orchestrator.New(s, translate.New(), retriever.New(s), v, co, orchestrator.Options{
				Project:     cfg.Project.Name,
				Dialect:     cfg.Database.Source.Type,
				TargetDir:   cfg.Project.TargetDir,
				MaxRetries:  cfg.Project.MaxRetries,
				MaxRounds:   cfg.Corrector.MaxRounds,
				Workers:     cfg.Project.Workers,
				ChangedOnly: changedOnly,
			})

			log.Printf("porting project %s against %s",
				cfg.Project.Name, config.RedactDSN(cfg.Database.Target.URI))
			sum, err := o.Run(ctx)
			fmt.Println(sum.String())
			if counts, cErr := s.SummarizeMigration(cfg.Project.Name); cErr == nil {
				for _, c := range counts {
					fmt.Printf("  %-18s %d\n", c.Status, c.Count)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&changedOnly, "changed-only", false, "Only process assets whose source changed since their last rendered output")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-verify all rendered outputs without re-translating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext()
			defer cancel()

			v, err := newVerifier(ctx, cfg)
			if err != nil {
				return err
			}
			defer v.Close()

			outputs, err := s.ListRenderedOutputs(cfg.Project.Name)
			if err != nil {
				return err
			}
			for _, out := range outputs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if out.SQLText == "" {
					continue
				}
				res := v.Verify(ctx, out.SQLText)
				status := store.StatusDone
				verified := true
				switch {
				case !res.Success:
					status, verified = store.StatusVerifyFail, false
				case res.NeedsPermission:
					status, verified = store.StatusNeedPermission, false
				}

				prior, err := s.GetMigrationLog(cfg.Project.Name, out.FilePath)
				if err != nil {
					return err
				}
				update := store.StageUpdate{
					Project:            cfg.Project.Name,
					FilePath:           out.FilePath,
					Status:             status,
					LastErrorMsg:       res.Err,
					SkippedStatements:  res.SkippedStatements,
					ExecutedStatements: res.ExecutedStatements,
				}
				if prior != nil {
					update.RetryCount = prior.RetryCount
					update.DetectedSchemas = prior.DetectedSchemas
					update.TargetPath = prior.TargetPath
				}
				out.Status = status
				out.Verified = verified
				out.LastError = res.Err
				update.Output = &out
				if err := s.CommitStage(update); err != nil {
					return err
				}
				fmt.Printf("%-40s %s\n", out.FileName, status)
			}
			return nil
		},
	}
}

func applyCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute verified outputs against the target database (commits)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := signalContext()
			defer cancel()

			v, err := newVerifier(ctx, cfg)
			if err != nil {
				return err
			}
			defer v.Close()

			outputs, err := s.ListRenderedOutputs(cfg.Project.Name)
			if err != nil {
				return err
			}
			applied, failed := 0, 0
			for _, out := range outputs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if out.SQLText == "" || (!out.Verified && !force) {
					continue
				}
				res := v.Apply(ctx, out.SQLText)
				if res.Success {
					out.Status = store.StatusApplied
					out.LastError = ""
					applied++
				} else {
					out.Status = store.StatusApplyFail
					out.LastError = res.Err
					failed++
					log.Printf("apply %s: %s", out.FileName, res.Err)
				}
				if err := s.SaveRenderedOutput(out); err != nil {
					return err
				}
			}
			fmt.Printf("applied %d outputs, %d failed\n", applied, failed)
			if failed > 0 {
				return fmt.Errorf("%d outputs failed to apply", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Apply unverified outputs as well")
	return cmd
}

func exportCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write rendered outputs to the target directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := ingest.Export(s, cfg.Project.Name, cfg.Project.TargetDir, !all)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d files to %s\n", n, cfg.Project.TargetDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Export unverified outputs as well")
	return cmd
}

func statusCmd() *cobra.Command {
	var asJSON bool
	var schema, status string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration progress for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r, err := report.Generate(cfg.Project.DBFile, cfg.Project.Name, report.Filter{
				Schema: schema,
				Status: status,
			})
			if err != nil {
				return err
			}
			if asJSON {
				text, err := report.FormatJSON(r)
				if err != nil {
					return err
				}
				fmt.Println(text)
				return nil
			}
			fmt.Print(report.FormatText(r))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	cmd.Flags().StringVar(&schema, "schema", "", "Only assets touching this schema")
	cmd.Flags().StringVar(&status, "status", "", "Only assets in this status")
	return cmd
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear migration progress, forcing a full re-run (outputs are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.ResetMigrationLogs(cfg.Project.Name)
			if err != nil {
				return err
			}
			fmt.Printf("reset %d migration records for project %s\n", n, cfg.Project.Name)
			return nil
		},
	}
}

func newVerifier(ctx context.Context, cfg *config.Config) (*verify.Verifier, error) {
	return verify.New(ctx, verify.Options{
		TargetURI:          cfg.Database.Target.URI,
		MaxConns:           int(cfg.Database.Target.MaxConns),
		StatementTimeoutMs: cfg.Database.Target.StatementTimeoutMs,
		Policy: verify.Policy{
			AllowDangerous:  cfg.Verification.AllowDangerousStatements,
			AllowProcedures: cfg.Verification.AllowProcedureExecution,
		},
	})
}
