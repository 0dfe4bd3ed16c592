package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/ipak/pkg/archive"
	"github.com/arthur-debert/ipak/pkg/ops"
)

type envFunc func() (ops.Env, error)

func newInstallCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "install <archive>",
		Short: MsgInstallShort,
		Long:  MsgInstallLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			plan, err := ops.InstallPackage(cmd.Context(), e, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s scope): %s\n",
				plan.Target, e.Scope.Kind, strings.Join(plan.Names(), ", "))
			return nil
		},
	}
}

func newRemoveCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: MsgRemoveShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			if err := ops.RemovePackage(e, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (configuration retained)\n", args[0])
			return nil
		},
	}
}

func newPurgeCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <name>",
		Short: MsgPurgeShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			if err := ops.PurgePackage(e, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: MsgListShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			records, err := ops.ListInstalled(e)
			if err != nil {
				return err
			}
			return renderList(cmd.OutOrStdout(), e.Scope, records)
		},
	}
}

func newPlanCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <archive>",
		Short: MsgPlanShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			plan, _, err := ops.ResolveInstallPlan(e, args[0])
			if err != nil {
				return err
			}
			for i, step := range plan.Steps {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s %s\n", i+1, step.Name, step.Metadata.Version)
			}
			return nil
		},
	}
}

func newMetadataCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <archive>",
		Short: MsgMetaShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			meta, err := ops.ReadPackageMetadata(e, args[0])
			if err != nil {
				return err
			}
			return renderMetadata(cmd.OutOrStdout(), meta)
		},
	}
}

func newPackCmd(env envFunc) *cobra.Command {
	var (
		formatName string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "pack <source-dir>",
		Short: MsgPackShort,
		Long:  MsgPackLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			format, err := archive.ParseFormat(formatName)
			if err != nil {
				return err
			}
			path, err := ops.CreateArchive(e, args[0], output, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", string(archive.DefaultFormat), "Archive format: tar, tar.gz, tar.zst, zip")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default <name>-<version>.<ext>)")
	return cmd
}

func newExtractCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive> <dest-dir>",
		Short: MsgExtractShort,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := env()
			if err != nil {
				return err
			}
			draft, err := ops.ExtractArchive(e, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %s %s (%d files) into %s\n",
				draft.Metadata.Name, draft.Metadata.Version, len(draft.Files), args[1])
			return nil
		},
	}
}
