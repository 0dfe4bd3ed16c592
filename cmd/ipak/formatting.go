package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"github.com/arthur-debert/ipak/pkg/metadata"
	"github.com/arthur-debert/ipak/pkg/scope"
	"github.com/arthur-debert/ipak/pkg/store"
)

// stdoutIsTerminal gates styled output so piped output stays plain.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// renderList prints the installed records, as a styled table on a
// terminal and as plain tab-separated lines otherwise.
func renderList(w io.Writer, sc scope.Scope, records []store.InstalledRecord) error {
	if len(records) == 0 {
		fmt.Fprintf(w, "No packages installed in the %s scope\n", sc.Kind)
		return nil
	}

	if !stdoutIsTerminal() {
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Name, rec.Version, rec.Status)
		}
		return nil
	}

	rows := pterm.TableData{{"NAME", "VERSION", "STATUS", "FILES"}}
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Name,
			rec.Version,
			string(rec.Status),
			fmt.Sprintf("%d", len(rec.Files)),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).WithWriter(w).Render()
}

func renderMetadata(w io.Writer, meta *metadata.PackageMetadata) error {
	fmt.Fprintf(w, "Name:          %s\n", meta.Name)
	fmt.Fprintf(w, "Version:       %s\n", meta.Version)
	if meta.Description != "" {
		fmt.Fprintf(w, "Description:   %s\n", meta.Description)
	}
	if meta.Author.Name != "" || meta.Author.Email != "" {
		fmt.Fprintf(w, "Author:        %s <%s>\n", meta.Author.Name, meta.Author.Email)
	}
	fmt.Fprintf(w, "Architectures: %v\n", meta.Architectures)
	fmt.Fprintf(w, "Mode:          %s\n", meta.Mode)
	for _, dep := range meta.Dependencies {
		fmt.Fprintf(w, "Depends:       %s %s\n", dep.Name, dep.Constraint)
	}
	for _, cmd := range meta.DependCmds {
		fmt.Fprintf(w, "Needs command: %s\n", cmd)
	}
	return nil
}
