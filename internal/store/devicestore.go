// Package store implements the two JSON-file stores the GATT server and
// dispatcher consult: trusted devices (auto-accept) and command phrases
// (spec.md section 6.2/6.3), both modeled on
// original_source/desktop/src/storage/paired_devices.rs.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const deviceStoreVersion = 1

// TrustedDevice is one entry in the trusted-devices file.
type TrustedDevice struct {
	DeviceID      string `json:"device_id"`
	DeviceName    string `json:"device_name,omitempty"`
	FirstPaired   string `json:"first_paired"`
	LastConnected string `json:"last_connected"`
}

type trustedDevicesFile struct {
	Version int             `json:"version"`
	Devices []TrustedDevice `json:"devices"`
}

// DeviceStore is the trusted-device JSON store consulted for the
// pairing auto-accept policy (spec.md section 4.4/6.2).
type DeviceStore struct {
	mu      sync.Mutex
	path    string
	devices []TrustedDevice
}

// NewDeviceStore creates the data directory if needed and loads any
// existing paired_devices.json, matching
// original_source's TrustedDeviceStore::new.
func NewDeviceStore(dataDir string) (*DeviceStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, "paired_devices.json")
	devices, err := loadDevices(path)
	if err != nil {
		return nil, err
	}
	return &DeviceStore{path: path, devices: devices}, nil
}

func loadDevices(path string) ([]TrustedDevice, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	var file trustedDevicesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return file.Devices, nil
}

// IsTrusted reports whether deviceID is in the trusted list, satisfying
// pairing.TrustStore.
func (s *DeviceStore) IsTrusted(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// AddTrusted adds a new trusted device or updates an existing entry's
// name and last-connected time, then persists.
func (s *DeviceStore) AddTrusted(deviceID, deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range s.devices {
		if s.devices[i].DeviceID == deviceID {
			s.devices[i].DeviceName = deviceName
			s.devices[i].LastConnected = now
			return s.saveLocked()
		}
	}
	s.devices = append(s.devices, TrustedDevice{
		DeviceID:      deviceID,
		DeviceName:    deviceName,
		FirstPaired:   now,
		LastConnected: now,
	})
	return s.saveLocked()
}

// UpdateLastConnected refreshes the last-connected timestamp for an
// already-trusted device.
func (s *DeviceStore) UpdateLastConnected(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].DeviceID == deviceID {
			s.devices[i].LastConnected = time.Now().UTC().Format(time.RFC3339)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("store: device %s not found in trusted devices", deviceID)
}

// Forget removes deviceID from the trusted list and persists the
// store. It reports whether the device was present.
func (s *DeviceStore) Forget(deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].DeviceID == deviceID {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// List returns a copy of all trusted devices.
func (s *DeviceStore) List() []TrustedDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrustedDevice, len(s.devices))
	copy(out, s.devices)
	return out
}

func (s *DeviceStore) saveLocked() error {
	file := trustedDevicesFile{Version: deviceStoreVersion, Devices: s.devices}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", s.path, err)
	}
	return atomicWriteFile(s.path, data)
}

// atomicWriteFile writes data to a sibling temp file, then renames it
// into place, matching the teacher's models.DownloadWhisper "write to
// temp, then os.Rename" pattern.
func atomicWriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename into %s: %w", path, err)
	}
	return nil
}
