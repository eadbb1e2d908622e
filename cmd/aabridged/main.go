// Command aabridged runs the WiFi to USB Android Auto bridge daemon.
//
// It exposes the access point bridge socket the phone connects to,
// drives the AOA handshake toward the head unit, forwards projection
// bytes in both directions, and serves telemetry over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/madkoding/esp32-android-auto-wifi/bridge"
	"github.com/madkoding/esp32-android-auto-wifi/pkg"
	"github.com/madkoding/esp32-android-auto-wifi/telemetry"
	"github.com/madkoding/esp32-android-auto-wifi/transport"
	"github.com/madkoding/esp32-android-auto-wifi/transport/aoa"
)

// fileConfig is the TOML configuration file layout. Every field is
// optional; flags override the file, defaults fill the rest.
type fileConfig struct {
	SSID         string `toml:"ssid"`
	Passphrase   string `toml:"passphrase"`
	Channel      int    `toml:"channel"`
	Address      string `toml:"address"`
	Port         int    `toml:"port"`
	Telemetry    string `toml:"telemetry_listen"`
	PoolCount    int    `toml:"pool_count"`
	PoolCapacity int    `toml:"pool_capacity"`
	BackoffSec   int    `toml:"backoff_seconds"`
}

var (
	cfgFile       string
	flagAddress   string
	flagPort      int
	flagTelemetry string
	flagVerbose   bool
	flagJSONLogs  bool
)

var rootCmd = &cobra.Command{
	Use:           "aabridged",
	Short:         "WiFi to USB Android Auto bridge daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to TOML configuration file")
	rootCmd.Flags().StringVar(&flagAddress, "address", "", "bridge socket address (overrides config)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "bridge socket port (overrides config)")
	rootCmd.Flags().StringVar(&flagTelemetry, "telemetry", "", "telemetry listen address (overrides config)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&flagJSONLogs, "json", false, "log in JSON format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig merges file, flags, and defaults into a bridge config plus
// the telemetry listen address.
func loadConfig() (bridge.Config, string, error) {
	var fc fileConfig
	if cfgFile != "" {
		if _, err := toml.DecodeFile(cfgFile, &fc); err != nil {
			return bridge.Config{}, "", fmt.Errorf("parse config %s: %w", cfgFile, err)
		}
	}

	if flagAddress != "" {
		fc.Address = flagAddress
	}
	if flagPort > 0 {
		fc.Port = flagPort
	}
	if flagTelemetry != "" {
		fc.Telemetry = flagTelemetry
	}
	if fc.Telemetry == "" {
		fc.Telemetry = ":9090"
	}

	cfg := bridge.DefaultConfig()
	if fc.SSID != "" {
		cfg.AP.SSID = fc.SSID
	}
	if fc.Passphrase != "" {
		cfg.AP.Passphrase = fc.Passphrase
	}
	if fc.Channel > 0 {
		cfg.AP.Channel = fc.Channel
	}
	if fc.Address != "" {
		cfg.AP.Address = fc.Address
	}
	if fc.Port > 0 {
		cfg.AP.Port = fc.Port
	}
	if fc.PoolCount > 0 {
		cfg.PoolCount = fc.PoolCount
	}
	if fc.PoolCapacity > 0 {
		cfg.PoolCapacity = fc.PoolCapacity
	}
	if fc.BackoffSec > 0 {
		cfg.Backoff = time.Duration(fc.BackoffSec) * time.Second
	}
	return cfg, fc.Telemetry, nil
}

func run() error {
	if flagVerbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if flagJSONLogs {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	cfg, telemetryAddr, err := loadConfig()
	if err != nil {
		return err
	}

	// No USB host controller is wired up yet; the loopback port stands
	// in for the head unit and echoes projection bytes back.
	// TODO: libusb-backed aoa.Port once the controller bindings land.
	port := aoa.NewLoopbackPort()
	seq := bridge.NewSequencer(cfg, port)
	go echoHeadUnit(port)

	tsrv := telemetry.NewServer(seq)
	go func() {
		if err := tsrv.ListenAndServe(telemetryAddr); err != nil {
			pkg.LogError(pkg.ComponentTelemetry, "telemetry server failed",
				"error", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- seq.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		pkg.LogInfo(pkg.ComponentSequencer, "shutting down", "signal", sig.String())
	case err := <-runErr:
		return err
	}

	seq.Stop()
	tsrv.Shutdown(context.Background())
	return nil
}

// echoHeadUnit drains the loopback head unit end and writes everything
// straight back, session after session.
func echoHeadUnit(port *aoa.LoopbackPort) {
	buf := make([]byte, 2048)
	for {
		head := port.HeadUnit()
		if head == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		n, err := head.Read(buf)
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if _, err := head.Write(buf[:n]); err != nil && transport.IsLost(err) {
			time.Sleep(10 * time.Millisecond)
		}
	}
}
