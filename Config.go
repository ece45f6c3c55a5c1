/*
File Name:  Config.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package core

import (
	_ "embed" // Required for embedding default Config file
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v3"
)

// Version is the current core library version.
const Version = "0.1"

//go:embed "Config Default.yaml"
var defaultConfig []byte

// Config is the engine's on-disk configuration. It carries no peer list or
// key material: identity is generated fresh at each Init (spec.md §6,
// "persistent state: none on disk").
type Config struct {
	DeviceName string `yaml:"DeviceName"` // Friendly name advertised over discovery. Generated from the hostname if empty.
	LogFile    string `yaml:"LogFile"`    // Log file. Empty disables file logging; stdout logging is always on.

	DiscoveryPort int    `yaml:"DiscoveryPort"` // UDP beacon / mDNS port. 0 defaults to defaultDiscoveryPort.
	ExplicitIP    string `yaml:"ExplicitIP"`    // Overrides auto-detected addresses for mDNS registration, per spec.md §4.2.
}

// LoadConfig reads the YAML configuration file into configOut. If filename
// does not exist or is empty, the embedded default is used instead.
// Status: 0 = Success, 1 = Error accessing config file, 2 = Error reading
// config file, 3 = Error parsing config file.
func LoadConfig(filename string, configOut interface{}) (status int, err error) {
	var configData []byte

	stats, statErr := os.Stat(filename)
	switch {
	case statErr != nil && os.IsNotExist(statErr):
		configData = defaultConfig
	case statErr != nil:
		return ExitErrorConfigAccess, statErr
	case stats.Size() == 0:
		configData = defaultConfig
	default:
		if configData, err = ioutil.ReadFile(filename); err != nil {
			return ExitErrorConfigRead, err
		}
	}

	if err = yaml.Unmarshal(configData, configOut); err != nil {
		return ExitErrorConfigParse, err
	}

	return ExitSuccess, nil
}

// SaveConfig writes config as YAML to filename, overwriting any existing
// file.
func SaveConfig(filename string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(filename, data, 0644)
}
