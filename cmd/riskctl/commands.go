package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/internal/repository"
	"github.com/noah-isme/student-risk-api/internal/service"
	"github.com/noah-isme/student-risk-api/pkg/cache"
	"github.com/noah-isme/student-risk-api/pkg/config"
	"github.com/noah-isme/student-risk-api/pkg/database"
	"github.com/noah-isme/student-risk-api/pkg/export"
	"github.com/noah-isme/student-risk-api/pkg/logger"
	"github.com/noah-isme/student-risk-api/pkg/storage"
)

type scoreFlags struct {
	attendance float64
	grade      float64
	absences   int
	missed     int
	evasion    float64
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Operate the student risk store from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScoreCmd(), newReassessCmd(), newExportCmd())
	return root
}

func newScoreCmd() *cobra.Command {
	var f scoreFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score an indicator snapshot and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := models.RiskIndicators{
				AttendancePercentage: f.attendance,
				GradeAverage:         f.grade,
				AbsencesLast30Days:   f.absences,
				MissedActivities:     f.missed,
			}
			if cmd.Flags().Changed("evasion") {
				rate := f.evasion
				in.ClassEvasionRate = &rate
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(service.CalculateRiskScore(in))
		},
	}
	cmd.Flags().Float64Var(&f.attendance, "attendance", 100, "attendance percentage (0-100)")
	cmd.Flags().Float64Var(&f.grade, "grade", 10, "grade average (0-10)")
	cmd.Flags().IntVar(&f.absences, "absences", 0, "absences in the last 30 days")
	cmd.Flags().IntVar(&f.missed, "missed", 0, "missed activities")
	cmd.Flags().Float64Var(&f.evasion, "evasion", 0, "class evasion rate percentage")
	return cmd
}

func newReassessCmd() *cobra.Command {
	var classID string
	cmd := &cobra.Command{
		Use:   "reassess",
		Short: "Reassess every active student of a class synchronously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(s *store) error {
				assessed, err := s.risk.AssessClass(cmd.Context(), classID)
				fmt.Fprintf(cmd.OutOrStdout(), "class %s: %d students assessed\n", classID, assessed)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&classID, "class", "", "class id")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		recordID string
		format   string
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a risk record report with its intervention timeline to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exportFormat, err := service.ParseExportFormat(format)
			if err != nil {
				return err
			}
			reports, err := storage.NewReportDir(outDir)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), func(s *store) error {
				file, err := s.export.ExportRiskRecord(cmd.Context(), recordID, exportFormat)
				if err != nil {
					return err
				}
				path, err := reports.Save(file.Filename, file.Data)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&recordID, "record", "", "risk record id")
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or csv")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}

type store struct {
	risk   *service.RiskService
	export *service.ExportService
}

// withStore connects to postgres (and redis when enabled, so list caches are
// invalidated) and hands the wired services to fn.
func withStore(ctx context.Context, fn func(*store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cached listings will expire on their own", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, cfg.ServiceName, logr), nil, cfg.Risk.CacheTTL, logr, redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRiskRecordRepository(db)
	return fn(&store{
		risk:   service.NewRiskService(recordRepo, repository.NewIndicatorRepository(db), nil, cacheSvc, cfg.Risk.CacheTTL, userRepo, nil, nil, logr),
		export: service.NewExportService(recordRepo, repository.NewInterventionRepository(db), logr, export.NewCSVExporter(';'), export.NewPDFExporter()),
	})
}
