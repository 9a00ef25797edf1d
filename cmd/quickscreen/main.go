// Quickscreen CLI entry point.
//
// This tool shares a screen over raw UDP on a local network. A host streams
// frames to every peer it has admitted; admission is decided either at the
// host's terminal or by a remote controller over WebSocket.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the host, join and admin subcommands.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/quickscreen/internal/config"
	"github.com/1ureka/quickscreen/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true

	if err := root.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:     "quickscreen",
		Short:   "Share a screen with peers on the local network over UDP",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				util.EnableDebug()
			}
			pterm.Info.Printfln("quickscreen v%s", version)
			pterm.Println()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newHostCmd(&debug), newJoinCmd(&debug), newAdminCmd())
	return root
}

func newHostCmd(debug *bool) *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Share this screen and admit peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Debug = *debug
			cfg, err := loadConfig(config.RoleHost, opts)
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.Port, "port", "p", 0, "UDP port to host on (default 7200)")
	f.IntVar(&opts.FPS, "fps", 0, "Frames per second (default 15)")
	f.IntVar(&opts.Width, "width", 0, "Frame width in pixels (default 640)")
	f.IntVar(&opts.Height, "height", 0, "Frame height in pixels (default 360)")
	f.StringVar(&opts.ControlAddr, "control", "", "Serve remote admission on this address, e.g. :7300")
	return cmd
}

func newJoinCmd(debug *bool) *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Watch a host's screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Debug = *debug
			cfg, err := loadConfig(config.RolePeer, opts)
			if err != nil {
				return err
			}
			return runJoin(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Host, "host", "", "Host address (default 127.0.0.1)")
	f.IntVarP(&opts.Port, "port", "p", 0, "Host UDP port (default 7200)")
	f.IntVar(&opts.LocalPort, "local-port", 0, "Local UDP port (default: any)")
	f.Uint16Var(&opts.ClientID, "id", 0, "Client id (default: random)")
	return cmd
}

func newAdminCmd() *cobra.Command {
	var rawURL, pin string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Decide admissions for a remote host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := normalizeControlURL(rawURL, pin)
			if err != nil {
				return err
			}
			return runAdmin(cmd.Context(), wsURL)
		},
	}

	f := cmd.Flags()
	f.StringVar(&rawURL, "url", "", "Control server address, e.g. ws://192.168.1.20:7300")
	f.StringVar(&pin, "pin", "", "PIN printed by the host")
	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("pin")
	return cmd
}

// loadConfig resolves and validates the configuration for role.
func loadConfig(role config.Role, opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(role, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		util.EnableDebug()
	}
	return cfg, nil
}
