/*
File Name:  main.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

voidwarpd is a minimal daemon embedding the engine, mirroring the
teacher's mobile.MobileMain wiring order (load config, init, start the
diagnostics API, connect) - the added concrete host for the embedding
surface, since the teacher itself has no standalone daemon.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/voidwarp/core"
	"github.com/voidwarp/core/httpapi"
)

func main() {
	configFile := flag.String("config", "Config.yaml", "Path to the configuration file")
	apiListen := flag.String("api", "127.0.0.1:5125", "Diagnostics API listen address, empty to disable")
	flag.Parse()

	backend, status, err := core.Init("voidwarpd/"+core.Version, *configFile, nil, nil)
	if status != core.ExitSuccess {
		fmt.Fprintf(os.Stderr, "Error %d initializing voidwarpd: %v\n", status, err)
		os.Exit(status)
	}

	if *apiListen != "" {
		httpapi.Start(backend, []string{*apiListen}, uuid.Nil)
	}

	backend.Connect()

	backend.LogError("main", "voidwarpd started as %q, listening for discovery on port %d", backend.Identity.DeviceName, backend.Config.DiscoveryPort)

	waitForShutdown()

	backend.Shutdown()
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
