package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pelidan/prontafon/internal/store"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Manage trusted (auto-accepting) devices",
}

var pairListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trusted devices",
	RunE:  runPairList,
}

var pairDeviceName string

var pairAcceptCmd = &cobra.Command{
	Use:   "accept <device-id>",
	Short: "Pre-authorize a device so future pairing requests auto-accept",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairAccept,
}

var pairForgetCmd = &cobra.Command{
	Use:   "forget <device-id>",
	Short: "Revoke a device's trust",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairForget,
}

func init() {
	pairAcceptCmd.Flags().StringVar(&pairDeviceName, "name", "", "friendly name to store for the device")
	pairCmd.AddCommand(pairListCmd, pairAcceptCmd, pairForgetCmd)
	rootCmd.AddCommand(pairCmd)
}

func openDeviceStore() (*store.DeviceStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return store.NewDeviceStore(cfg.Storage.DataDir)
}

func runPairList(cmd *cobra.Command, args []string) error {
	devices, err := openDeviceStore()
	if err != nil {
		return err
	}
	list := devices.List()
	if len(list) == 0 {
		fmt.Println("no trusted devices")
		return nil
	}
	for _, d := range list {
		fmt.Printf("%s\t%s\tfirst paired %s\tlast connected %s\n", d.DeviceID, d.DeviceName, d.FirstPaired, d.LastConnected)
	}
	return nil
}

func runPairAccept(cmd *cobra.Command, args []string) error {
	devices, err := openDeviceStore()
	if err != nil {
		return err
	}
	deviceID := args[0]
	if err := devices.AddTrusted(deviceID, pairDeviceName); err != nil {
		return fmt.Errorf("pair: %w", err)
	}
	fmt.Printf("trusted %s\n", deviceID)
	return nil
}

func runPairForget(cmd *cobra.Command, args []string) error {
	devices, err := openDeviceStore()
	if err != nil {
		return err
	}
	deviceID := args[0]
	removed, err := devices.Forget(deviceID)
	if err != nil {
		return fmt.Errorf("pair: %w", err)
	}
	if !removed {
		fmt.Printf("%s was not trusted\n", deviceID)
		return nil
	}
	fmt.Printf("forgot %s\n", deviceID)
	return nil
}
