package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/echoframe/internal/admin"
	"github.com/danmuck/echoframe/internal/config"
	"github.com/danmuck/echoframe/internal/logging"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/danmuck/echoframe/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "echoframe"

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "echoserver: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "echoserver",
		Short:         "Length-prefixed frame echo server over TCP or TLS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the echoserver version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), admin.Version)
		},
	}
}

func newServeCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and echo every frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(v)
			if err != nil {
				return err
			}
			logging.ConfigureFile(cfg.Log)
			defer logging.Close()
			logger := logging.Component("echoserver")
			runner, err := server.NewRunner(cfg, session.EchoHandler{}, logger)
			if err != nil {
				return err
			}
			return runner.Run()
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to an echoserver config.toml")
	flags.String("addr", server.DefaultListenAddr, "frame listen address")
	flags.String("admin-addr", "", "admin http listen address (empty disables)")
	flags.String("admin-token", "", "bearer token required on /sessions")
	flags.Int("workers", 0, "GOMAXPROCS override (0 = runtime default)")
	flags.String("security-mode", string(session.SecurityModeDevelopment), "development or production")
	flags.Bool("tls", false, "serve TLS instead of plain TCP")
	flags.String("tls-cert", "", "PEM certificate chain")
	flags.String("tls-key", "", "PEM private key")
	flags.String("tls-client-ca", "", "require client certificates signed by this CA bundle")
	flags.Int("max-pending-bytes", 0, "pause reads above this many queued bytes per session (0 = unbounded)")
	flags.Duration("heartbeat", 0, "heartbeat interval (0 disables)")
	flags.Duration("read-timeout", 0, "per-read idle timeout (0 disables)")
	flags.String("log-file", "", "also write JSON logs to this size-rotated file")
	flags.Int("log-max-size-mb", logging.DefaultLogMaxSizeMB, "rotate the log file after this many megabytes")
	flags.Int("log-max-backups", logging.DefaultLogMaxBackups, "rotated log files to keep")
	bindFlags(v, flags)
	return cmd
}

// bindFlags exposes every flag as ECHOFRAME_<FLAG> with dashes as underscores.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

// resolveConfig starts from the file (or defaults) and applies flags and
// environment on top.
func resolveConfig(v *viper.Viper) (server.RunnerConfig, error) {
	cfg := config.DefaultServerConfig()
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		loaded, err := config.LoadServerConfig(path)
		if err != nil {
			return server.RunnerConfig{}, err
		}
		cfg = loaded
	}

	if v.IsSet("addr") {
		cfg.Server.ListenAddr = v.GetString("addr")
	}
	if v.IsSet("admin-addr") {
		cfg.AdminAddr = v.GetString("admin-addr")
	}
	if v.IsSet("admin-token") {
		cfg.AdminToken = v.GetString("admin-token")
	}
	if v.IsSet("workers") {
		cfg.Workers = v.GetInt("workers")
	}
	if v.IsSet("log-file") {
		cfg.Log.Path = v.GetString("log-file")
	}
	if v.IsSet("log-max-size-mb") {
		cfg.Log.MaxSizeMB = v.GetInt("log-max-size-mb")
	}
	if v.IsSet("log-max-backups") {
		cfg.Log.MaxBackups = v.GetInt("log-max-backups")
	}
	sess := &cfg.Server.Session
	if v.IsSet("security-mode") {
		sess.SecurityMode = session.SecurityMode(v.GetString("security-mode"))
	}
	if v.IsSet("tls") {
		sess.TLS.Enabled = v.GetBool("tls")
	}
	if v.IsSet("tls-cert") {
		sess.TLS.CertFile = v.GetString("tls-cert")
	}
	if v.IsSet("tls-key") {
		sess.TLS.KeyFile = v.GetString("tls-key")
	}
	if v.IsSet("tls-client-ca") {
		sess.TLS.CAFile = v.GetString("tls-client-ca")
		sess.TLS.Mutual = sess.TLS.CAFile != ""
	}
	if v.IsSet("max-pending-bytes") {
		sess.MaxPendingBytes = v.GetInt("max-pending-bytes")
	}
	if v.IsSet("heartbeat") {
		sess.HeartbeatInterval = v.GetDuration("heartbeat")
	}
	if v.IsSet("read-timeout") {
		sess.ReadTimeout = v.GetDuration("read-timeout")
	}
	return cfg, nil
}
