package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pelidan/prontafon/internal/blelink"
	"github.com/pelidan/prontafon/internal/dispatch"
	"github.com/pelidan/prontafon/internal/inject"
	"github.com/pelidan/prontafon/internal/store"
	"github.com/pelidan/prontafon/internal/trayport"
)

var headless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the BLE peripheral and event dispatcher in the foreground",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&headless, "headless", false, "do not prompt on stdin for pairing decisions")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log := setupLogging(cfg)

	devices, err := store.NewDeviceStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("device store: %w", err)
	}
	commands, err := store.NewCommandStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("command store: %w", err)
	}

	peripheral := blelink.NewTinygoPeripheral()
	localDeviceID := uuid.NewString()
	server := blelink.NewServer(log, localDeviceID, peripheral, devices, blelink.Config{
		LocalName:      cfg.BLE.LocalName,
		ServiceUUID:    cfg.BLE.ServiceUUID,
		CommandRXUUID:  cfg.BLE.CommandRXUUID,
		ResponseTXUUID: cfg.BLE.ResponseTXUUID,
		StatusUUID:     cfg.BLE.StatusUUID,
		MTUInfoUUID:    cfg.BLE.MTUInfoUUID,
	})

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting BLE peripheral: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			log.Warn("error stopping BLE peripheral", "error", err)
		}
	}()

	injector := inject.NewRobotgoInjector()
	tray := trayport.Port(trayport.NewNullPort())

	d := dispatch.New(log, injector, commands, tray, server.Events())
	if !headless {
		stdin := bufio.NewReader(os.Stdin)
		d.SetPairingHandler(func(deviceID, deviceName string) {
			promptPairingDecision(stdin, server, devices, deviceID, deviceName)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig)
			cancel()
		case <-d.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("prontafon-desktopd ready", "local_name", cfg.BLE.LocalName, "headless", headless)
	d.Run(ctx)
	return nil
}

// promptPairingDecision reads a single accept/reject decision from
// stdin for one pairing request, matching the original's architecture
// where a human decides inline in the running process rather than
// through a separate CLI invocation. Invoked from the dispatcher's
// pairing-request callback, never as a second reader of the server's
// event channel.
func promptPairingDecision(stdin *bufio.Reader, server *blelink.Server, devices *store.DeviceStore, deviceID, deviceName string) {
	fmt.Printf("\nPairing request from %q (%s). Accept? [y/N] ", deviceName, deviceID)
	line, _ := stdin.ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(line), "y") {
		if err := server.AcceptPairing(); err != nil {
			fmt.Fprintf(os.Stderr, "accept failed: %v\n", err)
			return
		}
		if err := devices.AddTrusted(deviceID, deviceName); err != nil {
			fmt.Fprintf(os.Stderr, "saving trusted device failed: %v\n", err)
		}
	} else if err := server.RejectPairing("declined by operator"); err != nil {
		fmt.Fprintf(os.Stderr, "reject failed: %v\n", err)
	}
}
