package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/echoframe/internal/client"
	"github.com/danmuck/echoframe/internal/config"
	"github.com/danmuck/echoframe/internal/logging"
	"github.com/danmuck/echoframe/internal/protocol/frame"
	"github.com/danmuck/echoframe/internal/protocol/session"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "echoframe"

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "echoclient: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "echoclient",
		Short:         "Send frames to an echoserver and check the echo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to an echoclient config.toml")
	flags.String("addr", client.DefaultAddress, "server address")
	flags.String("security-mode", string(session.SecurityModeDevelopment), "development or production")
	flags.Bool("tls", false, "connect with TLS")
	flags.String("tls-ca", "", "CA bundle used to verify the server")
	flags.String("tls-server-name", "", "expected server name (defaults to the host in --addr)")
	flags.Bool("tls-insecure", false, "skip server certificate verification (development only)")
	flags.String("tls-cert", "", "client certificate for mutual TLS")
	flags.String("tls-key", "", "client key for mutual TLS")
	flags.Int("attempts", 0, "connect attempts before giving up (0 = config default)")
	bindFlags(v, flags)

	root.AddCommand(newSendCmd(v), newBenchCmd(v))
	return root
}

func newSendCmd(v *viper.Viper) *cobra.Command {
	var cmdName string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one frame and print the echoed payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(v)
			if err != nil {
				return err
			}
			id, ok := frame.ParseCommandID(cmdName)
			if !ok {
				return fmt.Errorf("unknown command %q", cmdName)
			}
			return runSend(cmd.Context(), cmd.OutOrStdout(), cfg, id, args[0])
		},
	}
	cmd.Flags().StringVar(&cmdName, "cmd", frame.CmdPublishMessage.String(), "command name or numeric id")
	return cmd
}

func runSend(ctx context.Context, out io.Writer, cfg client.Config, id frame.CommandID, message string) error {
	conn, err := client.Dial(ctx, cfg, logging.Component("echoclient"))
	if err != nil {
		return err
	}
	defer conn.Close()

	echoed, rtt, err := conn.Echo(id, []byte(message))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s %s (%s)\n", echoed.Command(), echoed.Payload, rtt)
	return err
}

func newBenchCmd(v *viper.Viper) *cobra.Command {
	var (
		conns    int
		messages int
		size     int
		format   string
		cmdName  string
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive concurrent echo round trips and report latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(v)
			if err != nil {
				return err
			}
			id, ok := frame.ParseCommandID(cmdName)
			if !ok {
				return fmt.Errorf("unknown command %q", cmdName)
			}
			report, err := client.Bench(cmd.Context(), client.BenchConfig{
				Client:      cfg,
				Connections: conns,
				Messages:    messages,
				PayloadSize: size,
				Command:     id,
			}, logging.Component("echoclient"))
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, format)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&conns, "conns", 8, "concurrent connections")
	flags.IntVar(&messages, "messages", 100, "round trips per connection")
	flags.IntVar(&size, "size", 64, "payload size in bytes")
	flags.StringVar(&format, "format", "yaml", "report format: yaml|json")
	flags.StringVar(&cmdName, "cmd", frame.CmdPublishMessage.String(), "command name or numeric id")
	return cmd
}

func writeReport(out io.Writer, report client.BenchReport, format string) error {
	var (
		body []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "yaml", "yml":
		body, err = yaml.Marshal(report)
	case "json":
		body, err = json.MarshalIndent(report, "", "  ")
		body = append(body, '\n')
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = out.Write(body)
	return err
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func resolveConfig(v *viper.Viper) (client.Config, error) {
	cfg := config.DefaultClientConfig()
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return client.Config{}, err
		}
		cfg = loaded
	}

	if v.IsSet("addr") {
		cfg.Address = v.GetString("addr")
	}
	if v.IsSet("attempts") && v.GetInt("attempts") > 0 {
		cfg.MaxConnectAttempts = v.GetInt("attempts")
	}
	sess := &cfg.Session
	if v.IsSet("security-mode") {
		sess.SecurityMode = session.SecurityMode(v.GetString("security-mode"))
	}
	if v.IsSet("tls") {
		sess.TLS.Enabled = v.GetBool("tls")
	}
	if v.IsSet("tls-ca") {
		sess.TLS.CAFile = v.GetString("tls-ca")
	}
	if v.IsSet("tls-server-name") {
		sess.TLS.ServerName = v.GetString("tls-server-name")
	}
	if v.IsSet("tls-insecure") {
		sess.TLS.InsecureSkipVerify = v.GetBool("tls-insecure")
	}
	if v.IsSet("tls-cert") {
		sess.TLS.CertFile = v.GetString("tls-cert")
	}
	if v.IsSet("tls-key") {
		sess.TLS.KeyFile = v.GetString("tls-key")
	}
	if sess.TLS.CertFile != "" && sess.TLS.KeyFile != "" {
		sess.TLS.Mutual = true
	}
	return cfg, nil
}
