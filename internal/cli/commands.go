package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lynx96-creator/ets2-mod-api/internal/app"
	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/internal/security"
	"github.com/Lynx96-creator/ets2-mod-api/internal/store"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// statusError carries the user-facing outcome text of a failed operation
type statusError struct {
	text string
	err  error
}

func (e *statusError) Error() string { return e.text }
func (e *statusError) Unwrap() error { return e.err }

func failure(err error) error {
	return &statusError{text: apperrors.StatusText(err), err: err}
}

// session loads the stored token and checks it belongs to this device
func (r *runner) session(ctx context.Context, s *app.Services) (domain.Session, error) {
	token, err := r.tokens.load()
	if err != nil {
		return domain.Session{}, err
	}
	sess, err := s.Tokens.Parse(token)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session expired or invalid, log in again: %w", err)
	}
	current, err := s.Device.Current(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to read device fingerprint: %w", err)
	}
	if !strings.EqualFold(current, sess.Fingerprint) {
		return domain.Session{}, failure(apperrors.ErrDeviceMismatch)
	}
	return sess, nil
}

func (r *runner) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and bind this computer to your account",
		Long: `Checks your email and password against the account store. The first
successful login binds the account to this computer; later logins from
another computer are refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := r.servicesFor(ctx)
			if err != nil {
				return err
			}

			password, err := promptSecret(r.in, r.out, "Password: ")
			if err != nil {
				return err
			}

			sess, err := s.License.Authenticate(ctx, email, password)
			if err != nil {
				return failure(err)
			}
			token, issued, err := s.Tokens.Issue(sess.Email, sess.Fingerprint)
			if err != nil {
				return err
			}
			if err := r.tokens.save(token); err != nil {
				return err
			}

			fmt.Fprintf(r.out, "Logged in as %s (session valid until %s)\n",
				issued.Email, issued.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (r *runner) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			existed, err := r.tokens.clear()
			if err != nil {
				return err
			}
			if existed {
				fmt.Fprintln(r.out, "Logged out")
			} else {
				fmt.Fprintln(r.out, "Not logged in")
			}
			return nil
		},
	}
}

func (r *runner) modsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mods",
		Short: "List the mods available to your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := r.servicesFor(ctx)
			if err != nil {
				return err
			}
			sess, err := r.session(ctx, s)
			if err != nil {
				return err
			}

			views, err := s.Catalog.ModViews(ctx, sess.Email, s.Installer.IsInstalled)
			if err != nil {
				return failure(err)
			}
			if len(views) == 0 {
				fmt.Fprintln(r.out, "No mods available.")
				return nil
			}
			for _, v := range views {
				mark := " "
				if v.Installed {
					mark = "x"
				}
				fmt.Fprintf(r.out, "[%s] %s\n", mark, v.Name)
			}
			return nil
		},
	}
}

func (r *runner) installCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "install <mod name>",
		Short: "Install a mod using its serial key",
		Long: `Validates the serial key, then downloads the mod into the game's mod
folder. A serial key works once; a new one is issued after every use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.servicesFor(ctx)
			if err != nil {
				return err
			}
			sess, err := r.session(ctx, s)
			if err != nil {
				return err
			}

			if key == "" {
				if key, err = promptSecret(r.in, r.out, "Serial key: "); err != nil {
					return err
				}
			}

			events, err := s.Sessions.StartInstall(ctx, sess, args[0], key)
			if err != nil {
				return failure(err)
			}
			return r.follow(ctx, s, events)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "serial key (prompted when omitted)")
	return cmd
}

func (r *runner) uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <mod name>",
		Short: "Remove an installed mod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := r.servicesFor(ctx)
			if err != nil {
				return err
			}
			sess, err := r.session(ctx, s)
			if err != nil {
				return err
			}

			entry, err := s.Catalog.Lookup(ctx, sess.Email, args[0])
			if err != nil {
				return failure(err)
			}
			events, err := s.Sessions.StartUninstall(ctx, sess, entry.InternalName)
			if err != nil {
				return failure(err)
			}
			return r.follow(ctx, s, events)
		},
	}
}

// follow prints progress until the terminal event and waits for the worker
func (r *runner) follow(ctx context.Context, s *app.Services, events <-chan domain.SessionEvent) error {
	var final domain.SessionEvent
	for ev := range events {
		if ev.Terminal {
			final = ev
			continue
		}
		fmt.Fprintf(r.out, "[%3d%%] %s\n", ev.Progress, ev.Status)
	}
	if err := s.Sessions.Wait(ctx); err != nil {
		return err
	}

	switch final.Phase {
	case domain.PhaseInstalled, domain.PhaseInstalledUnprotected, domain.PhaseRemoved:
		fmt.Fprintln(r.out, final.Status)
		return nil
	default:
		return &statusError{text: final.Status}
	}
}

func (r *runner) entitlementsCmd() *cobra.Command {
	var (
		email  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "entitlements",
		Short: "Show the catalog entries an account may install",
		Long: `Queries the record store for the entries visible to an account,
including download links and current serial keys. This is the same data the
/api/mods endpoint serves.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := r.servicesFor(ctx)
			if err != nil {
				return err
			}

			entries, err := s.Catalog.VisibleMods(ctx, email)
			if err != nil {
				return failure(err)
			}

			if asJSON {
				enc := json.NewEncoder(r.out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tINTERNAL NAME\tSERIAL KEY\tLINK")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.DisplayName, e.InternalName, e.SerialKey, e.Locator)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (r *runner) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := r.servicesFor(ctx)
			if err != nil {
				return err
			}
			application, err := app.New(s)
			if err != nil {
				return err
			}
			// Run shuts the services down on exit
			r.services = nil
			fmt.Fprintf(r.out, "%s serving on http://%s\n", contracts.GetVersionString(), application.Server.Addr)
			return application.Run(ctx)
		},
	}
}

func (r *runner) initWorkbookCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-workbook <path.xlsx>",
		Short: "Create an empty local record workbook",
		Long: `Writes a workbook with the account and catalog columns the xlsx store
driver reads. Use it to run the installer offline or in development.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := store.CreateWorkbook(path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (r *runner) hashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret",
		Short: "Print a bcrypt hash for the account password column",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			secret, err := promptSecret(r.in, r.out, "Password: ")
			if err != nil {
				return err
			}
			if secret == "" {
				return errors.New("password must not be empty")
			}
			hash, err := security.HashSecret(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(r.out, hash)
			return nil
		},
	}
}
