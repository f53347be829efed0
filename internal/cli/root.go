// Package cli implements the modinstaller command line client. Commands run
// the licensing and installation services in-process and keep the session
// token in the user's config directory.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lynx96-creator/ets2-mod-api/internal/app"
	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
	"github.com/Lynx96-creator/ets2-mod-api/internal/infrastructure"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts"
)

// ServicesFactory builds the service graph a command runs against
type ServicesFactory func(ctx context.Context) (*app.Services, error)

// Options configures the root command
type Options struct {
	In         io.Reader
	Out        io.Writer
	SessionDir string
	Services   ServicesFactory
}

// DefaultServices loads the configuration and builds the services from it
func DefaultServices(ctx context.Context) (*app.Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return app.NewServices(ctx, cfg, logger)
}

type runner struct {
	in       *bufio.Reader
	out      io.Writer
	tokens   tokenStore
	factory  ServicesFactory
	services *app.Services
}

// servicesFor builds the services once per invocation
func (r *runner) servicesFor(ctx context.Context) (*app.Services, error) {
	if r.services == nil {
		s, err := r.factory(ctx)
		if err != nil {
			return nil, err
		}
		r.services = s
	}
	return r.services, nil
}

func (r *runner) close(ctx context.Context) error {
	if r.services == nil {
		return nil
	}
	s := r.services
	r.services = nil
	return s.Close(ctx)
}

// NewRootCmd creates the modinstaller command tree
func NewRootCmd(opts Options) *cobra.Command {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.SessionDir == "" {
		opts.SessionDir = defaultSessionDir()
	}
	if opts.Services == nil {
		opts.Services = DefaultServices
	}

	r := &runner{
		in:      bufio.NewReader(opts.In),
		out:     opts.Out,
		tokens:  tokenStore{dir: opts.SessionDir},
		factory: opts.Services,
	}

	root := &cobra.Command{
		Use:           "modinstaller",
		Short:         "Install licensed Euro Truck Simulator 2 mods",
		Long:          `modinstaller logs in to your mod account, lists the mods you are entitled to and installs them into the game's mod folder.`,
		Version:       contracts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(contracts.GetFullVersionString() + "\n")
	root.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		return r.close(cmd.Context())
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Out)

	root.AddCommand(
		r.loginCmd(),
		r.logoutCmd(),
		r.modsCmd(),
		r.installCmd(),
		r.uninstallCmd(),
		r.entitlementsCmd(),
		r.serveCmd(),
		r.initWorkbookCmd(),
		r.hashSecretCmd(),
	)
	return root
}

// Execute runs the CLI with the default options
func Execute() int {
	if err := NewRootCmd(Options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
