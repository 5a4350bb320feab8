// Package main implements the SOCKS5 proxy server CLI.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog/log"

	"socks5d/pkg/config"
	"socks5d/pkg/logging"
	"socks5d/pkg/server"
	"socks5d/pkg/transport"
	"socks5d/pkg/upstream"
)

// CLI banner with version.
const banner = `
  ____   ___   ____ _  ______
 / ___| / _ \ / ___| |/ / ___|
 \___ \| | | | |   | ' /\___ \
  ___) | |_| | |___| . \ ___) |
 |____/ \___/ \____|_|\_\____/

   SOCKS5 Proxy (v1.0)
   -------------------

`

// Global state consulted by every command: cfg and proxy are set once during
// app.OnInit; cancelRun is set by "start" and cleared by "stop".
var (
	cfg       *config.Config
	proxy     *server.Server
	cancelRun context.CancelFunc
)

// main dispatches on a leading "shell" subcommand: with it, the teacher-
// style grumble REPL (start/stop/sessions) takes over argument parsing
// entirely; without it, the standard flag package drives a plain
// non-interactive run that blocks until SIGINT/SIGTERM, the way
// billy-rubin-Socks-proxy's cmd/socks-proxy/main.go parses its own
// one-shot binary's flags.
func main() {
	if len(os.Args) > 1 && os.Args[1] == "shell" {
		os.Args = append(os.Args[:1], os.Args[2:]...)
		runShell()
		return
	}

	configPath := flag.String("config", "config.json", "path to configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	runOneShot(*configPath, *verbose)
}

// runOneShot loads configuration, starts the proxy, and blocks until the
// process receives SIGINT or SIGTERM.
func runOneShot(configPath string, verbose bool) {
	logging.Configure(verbose)

	c, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	srv, err := buildServer(c)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("addr", c.ListenAddr).Msg("proxy started")
	if err := srv.Serve(ctx, c.ListenAddr); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}

// runShell launches the grumble-based interactive control shell.
func runShell() {
	app := setupCLI()
	addCommands(app)

	if err := app.Run(); err != nil {
		log.Fatal().Msg(err.Error())
	}
}

// setupCLI initializes the command-line interface with basic configuration,
// mirroring the teacher's setupCLI in cmd/proxy/main.go.
func setupCLI() *grumble.App {
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".socks5d"
	} else {
		histFile = filepath.Join(home, ".socks5d")
	}

	app := grumble.New(&grumble.Config{
		Name:        "socks5d",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.String("c", "config", "config.json", "path to configuration file")
			f.Bool("v", "verbose", false, "enable debug logging")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		logging.Configure(flags.Bool("verbose"))

		var err error
		cfg, err = config.LoadConfig(flags.String("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		proxy, err = buildServer(cfg)
		if err != nil {
			return fmt.Errorf("failed to build server: %v", err)
		}

		return nil
	})

	return app
}

// buildServer wires a transport.Factory, an upstream.Upstream, and a
// server.Server out of cfg, per SPEC_FULL.md's component wiring.
func buildServer(cfg *config.Config) (*server.Server, error) {
	downstreamFactory, err := buildDownstreamFactory(cfg)
	if err != nil {
		return nil, err
	}

	up, err := buildUpstream(cfg)
	if err != nil {
		return nil, err
	}

	srv := server.New(downstreamFactory, up, log.Logger)
	srv.HandshakeTimeout = cfg.HandshakeTimeout()
	return srv, nil
}

func buildDownstreamFactory(cfg *config.Config) (transport.Factory, error) {
	if cfg.DownstreamTLS == nil {
		return transport.NewTCPTransportFactory(), nil
	}

	tlsCfg, err := buildTLSConfig(cfg.DownstreamTLS)
	if err != nil {
		return nil, err
	}
	return transport.NewTLSTransportFactory(tlsCfg), nil
}

func buildUpstream(cfg *config.Config) (upstream.Upstream, error) {
	switch cfg.Upstream {
	case config.UpstreamSocks:
		factory, err := buildUpstreamFactory(cfg)
		if err != nil {
			return nil, err
		}
		return upstream.NewSocksUpstream(factory, cfg.RelayHost, cfg.RelayPort), nil
	default:
		return upstream.NewDirectUpstream(transport.NewTCPTransportFactory()), nil
	}
}

func buildUpstreamFactory(cfg *config.Config) (transport.Factory, error) {
	if cfg.UpstreamTLS == nil {
		return transport.NewTCPTransportFactory(), nil
	}

	tlsCfg, err := buildTLSConfig(cfg.UpstreamTLS)
	if err != nil {
		return nil, err
	}
	return transport.NewTLSTransportFactory(tlsCfg), nil
}

// buildTLSConfig assembles a *tls.Config from the JSON TLSConfig using
// transport.TLSConfigBuilder, the single-shot option builder from spec §6.
func buildTLSConfig(tc *config.TLSConfig) (*tls.Config, error) {
	b := transport.NewTLSConfigBuilder()

	if tc.CAPath != "" {
		if err := b.AddCAPath(tc.CAPath); err != nil {
			return nil, fmt.Errorf("add_ca_path: %v", err)
		}
	}
	if tc.CAFile != "" {
		if err := b.LoadCAFile(tc.CAFile); err != nil {
			return nil, fmt.Errorf("load_ca_file: %v", err)
		}
	}
	if tc.CertChain != "" {
		if err := b.LoadCertChain(tc.CertChain); err != nil {
			return nil, fmt.Errorf("load_cert_chain: %v", err)
		}
	}
	if tc.PrivateKey != "" {
		if err := b.LoadPrivateKey(tc.PrivateKey); err != nil {
			return nil, fmt.Errorf("load_private_key: %v", err)
		}
	}
	if err := b.SetVerifyPeer(tc.VerifyPeer); err != nil {
		return nil, fmt.Errorf("set_verify_peer: %v", err)
	}
	if tc.VerifyHost != "" {
		if err := b.SetVerifyHost(tc.VerifyHost); err != nil {
			return nil, fmt.Errorf("set_verify_host: %v", err)
		}
	}

	return b.Build()
}

// addCommands registers all CLI commands, mirroring the teacher's
// AddCommands in cmd/proxy/main.go.
func addCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name: "start",
		Help: "start the SOCKS5 proxy listener",
		Run: func(c *grumble.Context) error {
			if proxy == nil {
				log.Warn().Msg("no configuration loaded")
				return nil
			}
			if cancelRun != nil {
				log.Warn().Msg("proxy already running")
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			cancelRun = cancel

			go func() {
				if err := proxy.Serve(ctx, cfg.ListenAddr); err != nil {
					log.Error().Err(err).Msg("server stopped")
				}
			}()

			log.Info().Str("addr", cfg.ListenAddr).Msg("proxy started")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "stop",
		Help: "stop the SOCKS5 proxy listener",
		Run: func(c *grumble.Context) error {
			if cancelRun == nil {
				log.Warn().Msg("proxy is not running")
				return nil
			}
			cancelRun()
			cancelRun = nil
			log.Info().Msg("proxy stopped")
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name:    "sessions",
		Aliases: []string{"ls"},
		Help:    "list active sessions",
		Run: func(c *grumble.Context) error {
			if proxy == nil {
				log.Warn().Msg("no configuration loaded")
				return nil
			}
			c.App.Println(renderSessionTable(proxy.Sessions()))
			return nil
		},
	})
}

// renderSessionTable formats active sessions into a human-readable table,
// mirroring the teacher's RenderAgentTable in cmd/proxy/main.go.
func renderSessionTable(sessions []server.SessionInfo) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Session", "Client", "Upstream", "Started"})
	for _, s := range sessions {
		t.AppendRow(table.Row{s.ID, s.ClientAddr, s.UpstreamAddr, s.Started.Format("2006-01-02 15:04:05")})
	}

	return t.Render()
}
