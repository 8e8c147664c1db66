package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/pkg/client"
	"github.com/MCT-Salman/invocca/pkg/query"
)

// Config keys. Each has a matching persistent flag and INVOCCA_<KEY>
// environment variable.
const (
	cfgKeyServer    = "server"
	cfgKeyOutput    = "output"
	cfgKeyPageSize  = "page_size"
	cfgKeyStaleTime = "stale_time"
	cfgKeyTimeout   = "timeout"

	defaultServer    = "http://localhost:8080"
	defaultOutput    = outputTable
	defaultPageSize  = 10
	defaultStaleTime = query.DefaultStaleTime
	defaultTimeout   = 30 * time.Second
)

// app carries the state shared by all commands.
type app struct {
	v          *viper.Viper
	configPath string
	token      string
	verbose    bool
	logger     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "invoccactl",
		Short:         "Manage invocca halls, events and invitations",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", auth.DefaultConfigPath, "CLI config file")
	flags.StringVar(&a.token, "token", "", "bearer token (default: INVOCCA_TOKEN or auth.token in the config file)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests and retries to stderr")
	flags.String(cfgKeyServer, defaultServer, "API base URL")
	flags.StringP(cfgKeyOutput, "o", defaultOutput, "output format: table, json or yaml")
	flags.Int("page-size", defaultPageSize, "rows per page in the console")
	flags.Duration("stale-time", defaultStaleTime, "how long console lists stay fresh")
	flags.Duration(cfgKeyTimeout, defaultTimeout, "per-request timeout")

	for key, flag := range map[string]string{
		cfgKeyServer:    cfgKeyServer,
		cfgKeyOutput:    cfgKeyOutput,
		cfgKeyPageSize:  "page-size",
		cfgKeyStaleTime: "stale-time",
		cfgKeyTimeout:   cfgKeyTimeout,
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newDevTokenCmd(a),
		newWhoAmICmd(a),
		newDashboardCmd(a),
		newConsoleCmd(a),
	)
	root.AddCommand(resourceCommands(a)...)
	return root
}

// init loads the config file and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("INVOCCA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	a.v.SetConfigFile(auth.ExpandPath(a.configPath))
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := zerolog.WarnLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Str("component", "invoccactl").Logger()

	switch out := a.v.GetString(cfgKeyOutput); out {
	case outputTable, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unsupported output format %q (want table, json or yaml)", out)
	}
	return nil
}

// resolveToken returns the token used for requests, or "" when none is
// configured.
func (a *app) resolveToken() (auth.TokenResolution, error) {
	return auth.ResolveToken(auth.TokenSourceOptions{Explicit: a.token, ConfigPath: a.configPath})
}

func (a *app) client() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:   a.v.GetString(cfgKeyServer),
		Timeout:   a.v.GetDuration(cfgKeyTimeout),
		UserAgent: "invoccactl/" + version,
		TokenRefresh: func(context.Context) (string, error) {
			res, err := a.resolveToken()
			if err != nil {
				return "", err
			}
			a.logger.Debug().Str("source", string(res.Source)).Msg("resolved token")
			return res.Token, nil
		},
	})
}

func (a *app) output() string { return a.v.GetString(cfgKeyOutput) }

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Store a bearer token in the CLI config file",
		Long: `Login stores a bearer token under auth.token in the CLI config file.
Without an argument the token is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
				token = string(raw)
			}
			token = strings.TrimSpace(token)

			claims, err := auth.PeekClaims(token)
			if err != nil {
				return err
			}
			if err := auth.SaveToken(a.configPath, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", claims.Subject, claims.Role)
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := auth.SaveToken(a.configPath, ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoAmICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity in the current token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.resolveToken()
			if err != nil {
				return err
			}
			if res.Token == "" {
				return errors.New("not logged in")
			}
			claims, err := auth.PeekClaims(res.Token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) from %s\n", claims.Subject, claims.Role, res.Source)
			return nil
		},
	}
}

// newDevTokenCmd signs a token with a shared secret. It only works against
// servers holding the same secret, such as a dev server.
func newDevTokenCmd(a *app) *cobra.Command {
	var (
		subject, role, name, secret, issuer string
		ttl                                 time.Duration
		save                                bool
	)
	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Sign a token for a development server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("INVOCCA_JWT_SECRET")
			}
			if secret == "" {
				secret = auth.DevSecret
			}
			verifier, err := auth.NewVerifier([]byte(secret), issuer)
			if err != nil {
				return err
			}
			token, err := verifier.Sign(auth.Claims{Subject: subject, Role: role, Name: name}, ttl)
			if err != nil {
				return err
			}
			if save {
				if err := auth.SaveToken(a.configPath, token); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (user id)")
	cmd.Flags().StringVar(&role, "role", "client", "role: admin, manager, client or employee")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (default: INVOCCA_JWT_SECRET or the dev secret)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (default: invocca)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "also store the token in the CLI config file")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard summary for the current identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Dashboard(cmd.Context())
			if err != nil {
				return describe(err)
			}
			return printDashboard(cmd.OutOrStdout(), a.output(), res)
		},
	}
}
