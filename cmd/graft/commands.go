package main

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/chazu/graft/bytecode"
	"github.com/chazu/graft/loader"
	"github.com/chazu/graft/unit"
	"github.com/chazu/graft/vm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Patch the host and run its entry point",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		result, err := loader.Run(cmd.Context(), cfg, vm.ConsoleNatives(cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		if result != nil {
			fmt.Fprintln(cmd.OutOrStdout(), vm.Format(result))
		}
		return nil
	},
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the resolved mod load order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		c := loader.New(cfg)
		if err := c.Discover(cmd.Context()); err != nil {
			return err
		}
		if err := c.Resolve(cmd.Context()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, d := range c.Mods {
			fmt.Fprintf(out, "%3d  %-24s %s\n", i+1, d.ID, d.Archive)
		}
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Patch the host and write merged archives",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		result, err := loader.Merge(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "build %s: %d archives in %s\n", result.Manifest.BuildID, len(result.Archives()), cfg.Output)
		for _, a := range result.Archives() {
			fmt.Fprintf(out, "  %-24s %d entries\n", a.Name, a.Store.Len())
		}
		return nil
	},
}

var inspectDump bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <unit>...",
	Short: "Show where units resolve from and disassemble them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		c := loader.New(cfg)
		if err := c.Load(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, name := range args {
			entry, err := c.Source.Resolve(unit.PathFor(name))
			if err != nil {
				return err
			}
			u, err := unit.Decode(entry.Data)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			fmt.Fprintf(out, "%s %s (from %s)\n", u.Kind, u.Name, entry.Origin)
			if inspectDump {
				spew.Fdump(out, u)
				continue
			}
			for _, m := range u.Methods {
				listing, err := bytecode.DisassembleMethod(m)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprint(out, "\n"+indent(listing+"\n", "  "))
			}
		}

		if p := c.Patches; p != nil && len(p.Skipped) > 0 {
			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "%d declarations skipped:\n", len(p.Skipped))
			for _, s := range p.Skipped {
				fmt.Fprintf(errOut, "  %s\n", s)
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectDump, "dump", false, "dump the decoded unit structure")
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l != "" {
			b.WriteString(prefix)
			b.WriteString(l)
		}
	}
	return b.String()
}
