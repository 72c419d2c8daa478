package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"schoolcoop/config"
	"schoolcoop/controllers"
	"schoolcoop/database"
	"schoolcoop/services"
	"schoolcoop/utils"
)

type rootOptions struct {
	configFile string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand собирает CLI со всеми подкомандами
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "schoolcoop",
		Short: "Касса школьного сберегательно-кредитного кооператива",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "файл конфигурации (env имеет приоритет)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "писать отладочный лог")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newOverdueCommand(opts),
	)
	return rootCmd
}

// setup читает конфигурацию и поднимает логгеры
func (o *rootOptions) setup() (*config.Config, func() error, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	closeLogs, err := utils.InitLoggers(cfg.Log.Dir, o.debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLogs, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и планировщик просрочек",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := opts.setup()
			if err != nil {
				return err
			}
			defer closeLogs()

			db, err := database.Connect(cfg)
			if err != nil {
				return fmt.Errorf("ошибка подключения к базе данных: %w", err)
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scheduler := services.NewInstallmentScheduler(
				db.GetDB(),
				time.Duration(cfg.Scheduler.IntervalMinutes)*time.Minute,
				cfg.Scheduler.LoanLateFee,
			)
			scheduler.Start(ctx)
			utils.LogInfo("Планировщик просрочек запущен")

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           controllers.NewHandler(db, cfg, services.NewEmailService(cfg)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				utils.LogInfo("Сервер запущен на порту %d", cfg.Server.Port)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("ошибка запуска сервера: %w", err)
			case <-ctx.Done():
			}

			utils.LogInfo("Остановка сервера")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down [steps]",
		Short:     "Применить или откатить SQL миграции",
		Args:      cobra.MatchAll(cobra.RangeArgs(1, 2), validMigrateArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 2 {
				steps, _ = strconv.Atoi(args[1])
			}

			cfg, closeLogs, err := opts.setup()
			if err != nil {
				return err
			}
			defer closeLogs()

			if args[0] == "up" {
				if err := database.RunMigrations(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Миграции применены")
				return nil
			}
			if err := database.RollbackMigrations(cfg, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Откачено миграций: %d\n", steps)
			return nil
		},
	}
}

func validMigrateArgs(cmd *cobra.Command, args []string) error {
	if args[0] != "up" && args[0] != "down" {
		return fmt.Errorf("неизвестное направление %q, ожидается up или down", args[0])
	}
	if len(args) == 2 {
		if args[0] == "up" {
			return errors.New("число шагов задается только для down")
		}
		if n, err := strconv.Atoi(args[1]); err != nil || n <= 0 {
			return fmt.Errorf("неверное число шагов %q", args[1])
		}
	}
	return nil
}

func newOverdueCommand(opts *rootOptions) *cobra.Command {
	var schoolID uint

	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Вывести отчет о задолженностях в JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := opts.setup()
			if err != nil {
				return err
			}
			defer closeLogs()

			db, err := database.Connect(cfg)
			if err != nil {
				return fmt.Errorf("ошибка подключения к базе данных: %w", err)
			}
			defer db.Close()

			report, err := services.NewOverdueService(db.GetDB()).Report(cmd.Context(), services.OverdueFilter{SchoolID: schoolID})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().UintVar(&schoolID, "school", 0, "id школы, 0 - все школы")
	return cmd
}
