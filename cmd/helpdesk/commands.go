package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xela07ax/aml-helpdesk/internal/analysis"
	"github.com/xela07ax/aml-helpdesk/internal/oracle"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func predictCmd(opts *rootOptions) *cobra.Command {
	var (
		file  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Прогнать одну форму аналитика через нормализацию и оракул",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := readFields(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.service.Analyze(cmd.Context(), analysis.Request{Fields: fields, Debug: debug})
			if err != nil {
				var oErr *oracle.Error
				if errors.As(err, &oErr) && debug && oErr.Stderr != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), oErr.Stderr)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON-файл с формой (- для stdin)")
	cmd.Flags().BoolVar(&debug, "debug", false, "приложить stderr оракула")
	return cmd
}

func readFields(stdin io.Reader, file string) (map[string]any, error) {
	var r io.Reader = stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var fields map[string]any
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}
	return fields, nil
}

func latestCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Последние транзакции (живая БД или архивный файл)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			records, source := a.reader.LatestWithSource(cmd.Context(), limit)
			fmt.Fprintf(cmd.ErrOrStderr(), "source: %s, rows: %d\n", source, len(records))
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "сколько строк вернуть")
	return cmd
}

func summaryCmd(opts *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Сводная статистика для дашборда",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if !raw {
				return printJSON(cmd.OutOrStdout(), a.summary.Current(cmd.Context()))
			}
			agg, err := a.summary.Recompute(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), agg)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "пересчитать в обход кэша")
	return cmd
}

func setupStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup-stats",
		Short: "Создать таблицу сводки и выполнить первый пересчет",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireStore(); err != nil {
				return err
			}

			if err := a.store.EnsureSummaryTable(cmd.Context()); err != nil {
				return err
			}
			agg, err := a.summary.Recompute(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), agg)
		},
	}
}

func dbCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Отладка живого хранилища",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "SELECT 1",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(a *app) error {
				if err := a.store.Health(cmd.Context()); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{"ok": true})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Драйвер, база, таблица и счетчики",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(a *app) error {
				info, err := a.store.Info(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	})

	var limit int
	sample := &cobra.Command{
		Use:   "sample",
		Short: "Несколько строк таблицы транзакций",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(a *app) error {
				rows, err := a.store.Sample(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
	sample.Flags().IntVarP(&limit, "limit", "n", 5, "сколько строк вернуть")
	cmd.AddCommand(sample)

	return cmd
}

func withStore(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), opts.configPath)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireStore(); err != nil {
		return err
	}
	return fn(a)
}
