// Command graft loads mods into a closed host application: it orders them,
// patches the host, and runs it or emits merged archives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/graft/config"
	"github.com/chazu/graft/loader"
)

var (
	cfgFile   string
	verbosity int
	overrides struct {
		host, mods, loadOrder, list, entry, output string
		deny                                       []string
	}

	rootCmd = &cobra.Command{
		Use:           "graft",
		Short:         "Load mods into a closed host application",
		Version:       loader.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `graft resolves a load order among mods, splices their patch handlers
into the host's compiled methods, extends the host's enumerations, and then
runs the host entry point against the merged code source (graft run) or
writes distributable merged archives (graft merge).

Configuration is read from graft.toml; GRAFT_* environment variables and
flags override it.`,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./"+config.FileName+")")
	flags.CountVarP(&verbosity, "verbose", "v", "increase log verbosity")
	flags.StringVar(&overrides.host, "host", "", "host archive")
	flags.StringVar(&overrides.mods, "mods", "", "mods directory")
	flags.StringVar(&overrides.loadOrder, "load-order", "", "load-order list file")
	flags.StringVar(&overrides.list, "list", "", "list to use from the load-order file")
	flags.StringVar(&overrides.entry, "entry", "", "entry point (pkg.Class.method)")
	flags.StringVar(&overrides.output, "output", "", "output directory for merged archives")
	flags.StringSliceVar(&overrides.deny, "deny", nil, "additional denylist patterns")

	rootCmd.AddCommand(runCmd, orderCmd, mergeCmd, inspectCmd)
}

// loadConfig reads the configuration and applies flags given on the
// command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("host", &cfg.Host, overrides.host)
	set("mods", &cfg.ModsDir, overrides.mods)
	set("load-order", &cfg.LoadOrder, overrides.loadOrder)
	set("list", &cfg.List, overrides.list)
	set("entry", &cfg.Entry, overrides.entry)
	set("output", &cfg.Output, overrides.output)
	if flags.Changed("deny") {
		cfg.Deny = append(cfg.Deny, overrides.deny...)
	}
	if flags.Changed("verbose") {
		cfg.Verbosity = verbosity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	commonlog.Configure(cfg.Verbosity, nil)
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
