package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/ipak/internal/version"
	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/logging"
	"github.com/arthur-debert/ipak/pkg/ops"
	"github.com/arthur-debert/ipak/pkg/scope"
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	var (
		verbosity  int
		flagLocal  bool
		flagGlobal bool
	)

	rootCmd := &cobra.Command{
		Use:     "ipak",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().BoolVar(&flagLocal, "local", false, MsgFlagLocal)
	rootCmd.PersistentFlags().BoolVar(&flagGlobal, "global", false, MsgFlagGlobal)
	rootCmd.MarkFlagsMutuallyExclusive("local", "global")

	env := func() (ops.Env, error) {
		flag, err := scope.ParseFlag(flagLocal, flagGlobal)
		if err != nil {
			return ops.Env{}, err
		}
		sc, err := scope.Resolve(flag, os.Geteuid() == 0)
		if err != nil {
			return ops.Env{}, err
		}
		return ops.NewEnv(sc), nil
	}

	rootCmd.AddCommand(newInstallCmd(env))
	rootCmd.AddCommand(newRemoveCmd(env))
	rootCmd.AddCommand(newPurgeCmd(env))
	rootCmd.AddCommand(newListCmd(env))
	rootCmd.AddCommand(newPlanCmd(env))
	rootCmd.AddCommand(newMetadataCmd(env))
	rootCmd.AddCommand(newPackCmd(env))
	rootCmd.AddCommand(newExtractCmd(env))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ipak version %s\n", version.Version)
			fmt.Printf("  commit: %s\n", version.Commit)
			fmt.Printf("  built:  %s\n", version.Date)
		},
	}
}

// printError renders a failure to stderr, surfacing the error code when
// the error carries one.
func printError(err error) {
	if code := errors.GetErrorCode(err); code != errors.ErrUnknown {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", code, err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
