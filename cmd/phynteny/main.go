// Package main provides the phynteny command-line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// logger is replaced by the root command before any subcommand runs.
var logger = zap.NewNop()

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	logger.Sync()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var uerr *usageError
	if errors.As(err, &uerr) {
		fmt.Fprintf(os.Stderr, "Run 'phynteny %s --help' for usage.\n", uerr.command)
		return ExitUsage
	}
	return ExitError
}

// usageError marks a command-line mistake, reported with exit code 2.
type usageError struct {
	command string
	err     error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phynteny",
		Short: "Predict phage gene functions from gene order",
		Long: `phynteny assigns PHROG functional categories to phage genes of unknown
function from the categories of their neighbours, using masked-sequence
models trained on annotated genomes.`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(viper.GetViper(), cmd); err != nil {
				return err
			}
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			logger = newLogger(os.Stderr, viper.GetBool("verbose"))
			return nil
		},
	}
	root.SetVersionTemplate("phynteny version {{.Version}}\n")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{command: cmd.Name(), err: err}
	})

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default: ~/.phynteny.yaml)")
	pf.String("data-dir", "", "Directory for downloaded tables (default: ~/.phynteny/)")
	pf.BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newDownloadCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newTrainCmd())
	root.AddCommand(newKFoldCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// initConfig reads ~/.phynteny.yaml (or --config) and PHYNTENY_* variables.
// A missing config file is not an error; config set creates it.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix("PHYNTENY")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config %s: %w", f.Value.String(), err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(home)
	v.SetConfigName(".phynteny")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// dataDir returns --data-dir or ~/.phynteny.
func dataDir() (string, error) {
	if d := viper.GetString("data-dir"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".phynteny"), nil
}
