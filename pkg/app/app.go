// Package app builds the cobra command of a binary from its options: named
// flag sets, configuration file and environment resolution, validation and
// the run function.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"
)

// RunFunc runs the application once its options are loaded and valid.
type RunFunc func() error

type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	watch       bool
	args        cobra.PositionalArgs

	configFile string
	viper      *viper.Viper
	cmd        *cobra.Command
}

type Option func(*App)

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig disables the --config flag and environment variables.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithWatchConfig re-applies the log level when the config file changes.
func WithWatchConfig() Option {
	return func(a *App) { a.watch = true }
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		viper:     newViper(name),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command { return a.cmd }

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	if a.runFunc != nil {
		cmd.RunE = a.runCommand
	}

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	global := fss.FlagSet("global")
	if !a.noConfig {
		addConfigFlag(global, a.name, &a.configFile)
	}
	globalflag.AddGlobalFlags(global, cmd.Name())

	fs := cmd.Flags()
	for _, name := range fss.Order {
		fs.AddFlagSet(fss.FlagSets[name])
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if a.options != nil {
		if err := a.loadOptions(cmd); err != nil {
			return err
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	return a.runFunc()
}

// loadOptions overlays the config file and environment on the options.
// Flags given on the command line win over both.
func (a *App) loadOptions(cmd *cobra.Command) error {
	if a.noConfig {
		return nil
	}

	if err := a.viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	read, err := readConfig(a.viper, a.name, a.configFile)
	if err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	if err := a.viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	if read && a.watch {
		watchConfig(a.viper)
	}
	return nil
}
