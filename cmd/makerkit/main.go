// Package main provides the makerkit CLI: build the cached skeleton, prepare
// per-test environments and run generator test cases from YAML files.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/silver2dream/makerkit/internal/buildinfo"
	"github.com/silver2dream/makerkit/internal/config"
	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/ui"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "makerkit",
	Short: "Test harness for code-generator console commands",
	Long: `makerkit builds a pristine framework project once, clones it into a
working directory per test case and runs a generator command inside it
with scripted answers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
	},
}

func main() {
	os.Exit(execute())
}

func execute() int {
	if err := rootCmd.Execute(); err != nil {
		ui.NewOutputFormatter(os.Stderr).Error(err.Error())
		return herrors.GetExitCode(err)
	}
	return herrors.ExitSuccess
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", config.FileName, "Path to makerkit.yaml")
	flags.String("log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String("log-file", "", "Write logs to file instead of stderr")
	flags.String("cache-dir", "", "Override the cache directory")
	flags.Bool("pty", false, "Run generator commands under a pseudo-terminal")

	// Bind flags to viper; MAKERKIT_* environment variables fill unset flags
	for _, name := range []string{"config", "log-level", "log-file", "cache-dir", "pty"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(herrors.ExitGeneralError)
		}
	}
	viper.SetEnvPrefix("MAKERKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		skeletonCmd,
		prepareCmd,
		runCmd,
		replaceCmd,
		filesCmd,
		journalCmd,
		versionCmd,
	)
}
