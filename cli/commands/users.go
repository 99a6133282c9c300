package commands

import (
	"crypto/rand"
	"fmt"
	"net"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/turtacn/guomen/backend"
	"github.com/turtacn/guomen/common/log"
	"github.com/turtacn/guomen/config"
	"github.com/turtacn/guomen/proxy"
	"github.com/turtacn/guomen/security/auth"
)

// NewUsersCmd creates the users command group.
func NewUsersCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage the user catalog",
	}

	cmd.AddCommand(
		newUsersLoadCmd(cfgFile),
		newUsersVerifyCmd(cfgFile),
		newUsersDumpCmd(cfgFile),
	)
	return cmd
}

// buildListener wires a listener (and its backends) from the configuration.
// The returned cleanup closes everything.
func buildListener(cfgFile string) (*proxy.Listener, func(), error) {
	cfg, err := config.LoadWithFlags(cfgFile, nil)
	if err != nil {
		return nil, nil, err
	}
	log.SetLevel(cfg.Logging.Level)
	log.SetFormat(cfg.Logging.Format)

	var backends []backend.Querier
	var closers []func()
	for _, bc := range cfg.Backends {
		server, err := backend.Connect(bc, cfg.Auth)
		if err != nil {
			continue
		}
		backends = append(backends, server)
		closers = append(closers, func() { server.Close() })
	}

	listener, err := proxy.NewListener(cfg, backends, nil)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}

	cleanup := func() {
		listener.Close()
		for _, c := range closers {
			c()
		}
	}
	return listener, cleanup, nil
}

func newUsersLoadCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Load users from the backends and persist the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, cleanup, err := buildListener(*cfgFile)
			if err != nil {
				return err
			}
			defer cleanup()

			count, err := listener.LoadUsers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("loaded %d user entries\n", count)
			return nil
		},
	}
}

func newUsersVerifyCmd(cfgFile *string) *cobra.Command {
	var (
		user     string
		password string
		client   string
		database string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a credential through the full authentication path",
		Long: `Verify a credential without a client connection: compute the challenge
response a client would send for the given password and authenticate it
against the persisted user snapshot, or against a fresh load from the
backends when no snapshot file exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, cleanup, err := buildListener(*cfgFile)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := listener.RestoreUsers(); err != nil {
				return err
			}
			if listener.Snapshot() == nil {
				if _, err := listener.LoadUsers(cmd.Context()); err != nil {
					return err
				}
			}

			ip := net.ParseIP(client)
			if ip == nil {
				return fmt.Errorf("invalid client address %q", client)
			}

			scramble := make([]byte, auth.ScrambleLength)
			if _, err := rand.Read(scramble); err != nil {
				return err
			}

			req := auth.Request{
				User:     user,
				ClientIP: ip,
				Database: database,
				Token:    auth.ScrambleToken(password, scramble),
				Scramble: scramble,
			}
			res := listener.Authenticate(req)

			if res.Kind == auth.AuthOK {
				fmt.Printf("OK: %s@%s authenticated\n", user, client)
				return nil
			}
			fmt.Printf("DENIED: %v\n", proxy.MySQLError(req, res))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "account name")
	cmd.Flags().StringVar(&password, "password", "", "cleartext password to test")
	cmd.Flags().StringVar(&client, "client", "127.0.0.1", "client IPv4 address")
	cmd.Flags().StringVar(&database, "db", "", "database to request")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newUsersDumpCmd(cfgFile *string) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the persisted user snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			listener, cleanup, err := buildListener(*cfgFile)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := listener.RestoreUsers(); err != nil {
				return err
			}
			catalog := listener.Snapshot()
			if catalog == nil {
				return fmt.Errorf("no user snapshot found")
			}

			for _, row := range catalog.Rows() {
				db := "<any>"
				if !row.AnyDb {
					db = row.Db
					if db == "" {
						db = "<none>"
					}
				}
				fmt.Printf("%-24s %-24s %s\n", row.User, row.Host.String(), db)
			}
			fmt.Printf("%d entries, databases: %v\n", catalog.Len(), catalog.Databases())

			if verbose {
				sd := litter.Options{HidePrivateFields: true}
				fmt.Println(sd.Sdump(catalog.Rows()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "dump raw grant rows")
	return cmd
}
