// Package main - точка входа yatube: сервер, заполнение базы и версия.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "yatube"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options - флаги командной строки. Непустые значения перекрывают окружение.
type options struct {
	storage  string
	addr     string
	logLevel string
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Yatube - социальная сеть для публикации дневников",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.storage, "storage", "", "Storage type (in-memory, postgres or sqlite); overrides YATUBE_STORAGE")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides YATUBE_LOG_LEVEL")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	serve.Flags().StringVar(&opts.addr, "addr", "", "Listen address; overrides YATUBE_ADDR")

	var fixtures string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixtures into the storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, fixtures)
		},
	}
	seedCmd.Flags().StringVarP(&fixtures, "fixtures", "f", "", "Fixtures YAML file (embedded demo data when empty)")

	cmd.AddCommand(serve, seedCmd, &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}
