/*
File Name:  core_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDeviceIdentityIsSixteenHexChars(t *testing.T) {
	id := NewDeviceIdentity("test-device")
	if len(id.DeviceID) != 16 {
		t.Fatalf("expected 16 hex characters, got %q", id.DeviceID)
	}
	for _, c := range id.DeviceID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("non-hex character in device ID: %q", id.DeviceID)
		}
	}
	if id.DeviceName != "test-device" {
		t.Fatalf("got device name %q", id.DeviceName)
	}
}

func TestNewDeviceIdentityIsUniquePerCall(t *testing.T) {
	a := NewDeviceIdentity("x")
	b := NewDeviceIdentity("x")
	if a.DeviceID == b.DeviceID {
		t.Fatalf("expected distinct device IDs, got %q twice", a.DeviceID)
	}
}

func TestLoadConfigSeedsDefaultWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	var cfg Config

	status, err := LoadConfig(filepath.Join(dir, "missing.yaml"), &cfg)
	if err != nil || status != ExitSuccess {
		t.Fatalf("LoadConfig: status=%d err=%v", status, err)
	}
	if cfg.DiscoveryPort != defaultDiscoveryPort {
		t.Fatalf("expected default discovery port %d, got %d", defaultDiscoveryPort, cfg.DiscoveryPort)
	}
}

func TestSaveConfigThenLoadConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Config.yaml")

	want := Config{DeviceName: "kitchen-tablet", LogFile: "", DiscoveryPort: 55000, ExplicitIP: "10.0.0.5"}
	if err := SaveConfig(path, &want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	var got Config
	if status, err := LoadConfig(path, &got); err != nil || status != ExitSuccess {
		t.Fatalf("LoadConfig: status=%d err=%v", status, err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestInitRejectsEmptyUserAgent(t *testing.T) {
	dir := t.TempDir()
	_, status, err := Init("", filepath.Join(dir, "Config.yaml"), nil, nil)
	if err == nil {
		t.Fatalf("expected error for empty UserAgent")
	}
	if status == ExitSuccess {
		t.Fatalf("expected non-success status, got %d", status)
	}
}

func TestInitCreatesBackendWithIdentityAndDiscovery(t *testing.T) {
	dir := t.TempDir()
	backend, status, err := Init("test-app/1.0", filepath.Join(dir, "Config.yaml"), nil, nil)
	if err != nil || status != ExitSuccess {
		t.Fatalf("Init: status=%d err=%v", status, err)
	}
	defer backend.Shutdown()

	if backend.Identity.DeviceID == "" {
		t.Fatalf("expected a generated device ID")
	}
	if backend.Discovery == nil {
		t.Fatalf("expected a discovery manager")
	}
	if backend.Config.DeviceName == "" {
		t.Fatalf("expected a default device name to be assigned")
	}
}

func TestInitWritesLogFileWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "voidwarp.log")

	cfg := Config{LogFile: logPath, DiscoveryPort: 0}
	configPath := filepath.Join(dir, "Config.yaml")
	if err := SaveConfig(configPath, &cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	backend, status, err := Init("test-app/1.0", configPath, nil, nil)
	if err != nil || status != ExitSuccess {
		t.Fatalf("Init: status=%d err=%v", status, err)
	}
	defer backend.Shutdown()

	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
}

func TestLogErrorInvokesInstalledFilter(t *testing.T) {
	dir := t.TempDir()

	var gotFunction, gotFormat string
	filters := &Filters{
		LogError: func(function, format string, v ...interface{}) {
			gotFunction, gotFormat = function, format
		},
	}

	backend, status, err := Init("test-app/1.0", filepath.Join(dir, "Config.yaml"), filters, nil)
	if err != nil || status != ExitSuccess {
		t.Fatalf("Init: status=%d err=%v", status, err)
	}
	defer backend.Shutdown()

	backend.LogError("TestFunction", "something went wrong: %s", "reason")

	if gotFunction != "TestFunction" || gotFormat != "something went wrong: %s" {
		t.Fatalf("filter not invoked as expected: function=%q format=%q", gotFunction, gotFormat)
	}
}
