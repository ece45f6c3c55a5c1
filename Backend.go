/*
File Name:  Backend.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package core

import (
	"errors"
	"log"
	"net"
	"os"

	"github.com/voidwarp/core/discovery"
)

// errEmptyUserAgent is returned by Init when called without a User Agent.
var errEmptyUserAgent = errors.New("core: UserAgent must not be empty")

// defaultDiscoveryPort is used when Config.DiscoveryPort is unset. It
// matches the low end of the receiver's TCP port range (spec.md §6) so a
// single device typically advertises and listens on the same number.
const defaultDiscoveryPort = 42424

// Init initializes the client. If the config file does not exist or is
// empty, the embedded default configuration is used; no file is written.
// The User Agent must be provided in
// the form "Application Name/1.0". The returned status is of type ExitX.
// Anything other than ExitSuccess indicates a fatal failure. Init is
// idempotent: calling it multiple times with the same ConfigFilename simply
// creates independent Backend instances, matching spec.md §6's
// "idempotent logger setup; never aborts".
func Init(UserAgent string, ConfigFilename string, Filters *Filters, ConfigOut interface{}) (backend *Backend, status int, err error) {
	if UserAgent == "" {
		return nil, ExitErrorConfigParse, errEmptyUserAgent
	}

	backend = &Backend{
		ConfigFilename: ConfigFilename,
		userAgent:      UserAgent,
		Config:         &Config{},
		Stdout:         newMultiWriter(),
	}
	backend.Stdout.Subscribe(os.Stdout)

	if Filters != nil {
		backend.Filters = *Filters
	}
	backend.initFilters()

	if status, err = LoadConfig(ConfigFilename, backend.Config); status != ExitSuccess {
		return nil, status, err
	}
	if ConfigOut != nil {
		if status, err = LoadConfig(ConfigFilename, ConfigOut); status != ExitSuccess {
			return nil, status, err
		}
		backend.ConfigClient = ConfigOut
	}

	if err = backend.initLog(); err != nil {
		return nil, ExitErrorLogInit, err
	}

	if backend.Config.DeviceName == "" {
		backend.Config.DeviceName = defaultDeviceName()
	}
	backend.Identity = NewDeviceIdentity(backend.Config.DeviceName)

	manager, err := discovery.New(backend.Identity.DeviceID)
	if err != nil {
		manager = discovery.NewFallback(backend.Identity.DeviceID)
	}
	backend.Discovery = manager

	return backend, ExitSuccess, nil
}

// Connect registers this device for discovery and starts the mDNS browse
// loop and UDP beacon sender/listener. Per spec.md §4.2's failure policy,
// this never reports failure to the caller; IsFallback reveals whether
// mDNS registration actually succeeded.
func (backend *Backend) Connect() {
	var explicitIP net.IP
	if backend.Config.ExplicitIP != "" {
		explicitIP = net.ParseIP(backend.Config.ExplicitIP)
	}

	port := uint16(backend.Config.DiscoveryPort)
	if port == 0 {
		port = defaultDiscoveryPort
	}

	if err := backend.Discovery.RegisterService(backend.Identity.DeviceID, backend.Identity.DeviceName, port, explicitIP); err != nil {
		backend.LogError("Connect", "register service: %s", err.Error())
	}

	backend.Discovery.StartBackgroundBrowsing(port, backend.Identity.DeviceID, backend.Identity.DeviceName)
}

// Shutdown unregisters discovery services and stops its background loops.
// It does not touch any in-flight Sender/Receiver; those are owned and
// destroyed separately by the embedding host (spec.md §5's "resource
// cleanup").
func (backend *Backend) Shutdown() {
	if backend.Discovery != nil {
		backend.Discovery.Unregister()
	}
}

// LogError routes a recoverable error through the installed filter and,
// if file logging is active, the backend's logger.
func (backend *Backend) LogError(function, format string, v ...interface{}) {
	backend.Filters.LogError(function, format, v...)
	if backend.logger != nil {
		args := make([]interface{}, 0, len(v)+1)
		args = append(args, function)
		args = append(args, v...)
		backend.logger.Printf("[%s] "+format, args...)
	}
}

func (backend *Backend) initLog() error {
	if backend.Config.LogFile == "" {
		backend.logger = log.New(backend.Stdout, "", log.LstdFlags)
		return nil
	}

	logFile, err := os.OpenFile(backend.Config.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	//logFile intentionally stays open until process exit

	backend.Stdout.Subscribe(logFile)
	backend.logger = log.New(backend.Stdout, "", log.LstdFlags)
	backend.logger.Printf("---- VoidWarp %s ----", backend.userAgent)

	return nil
}

func defaultDeviceName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "voidwarp-device"
}

// The Backend represents an instance of the VoidWarp engine to be used by a
// frontend.
type Backend struct {
	ConfigFilename string      // Filename of the configuration file.
	Config         *Config     // Core configuration.
	ConfigClient   interface{} // Custom configuration from the client.
	Filters        Filters     // Filters allow installing hooks.
	userAgent      string      // User Agent.

	Identity  DeviceIdentity      // This device's identity, generated at Init.
	Discovery *discovery.Manager // Peer discovery: mDNS + UDP beacon.

	// Stdout bundles any output for the end-user. Writers may subscribe/unsubscribe.
	Stdout *multiWriter
	logger *log.Logger
}
