package main

import (
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/serialmux"
	"github.com/banshee-data/watercolumn/internal/simulate"
)

// portFlags are the command line settings for one serial port. Flags win
// over the config file when set.
type portFlags struct {
	path *string
	baud *int
}

// resolve merges the flags over the config file's port section. A nil
// result means the port is not configured.
func (p portFlags) resolve(fromFile *config.PortConfig) *config.PortConfig {
	var pc config.PortConfig
	if fromFile != nil {
		pc = *fromFile
	}
	if *p.path != "" {
		pc.Path = *p.path
	}
	if *p.baud > 0 {
		pc.BaudRate = *p.baud
	}
	if pc.Path == "" {
		return nil
	}
	return &pc
}

// serialPorts are the port settings in effect for this run. They are kept
// apart from the loaded config so that flag overrides never reach a saved
// config file.
type serialPorts struct {
	adcp, gps, output *config.PortConfig
}

func resolvePorts(cfg *config.AveragingConfig) serialPorts {
	return serialPorts{
		adcp:   adcpPort.resolve(cfg.ADCP),
		gps:    gpsPort.resolve(cfg.GPS),
		output: outputPort.resolve(cfg.Output),
	}
}

// openPort opens a configured serial port, or returns a disabled port when
// pc is nil.
func openPort(name string, pc *config.PortConfig) (serialmux.SerialMuxInterface, error) {
	if pc == nil {
		return serialmux.NewDisabledSerialMux(name), nil
	}
	mux, err := serialmux.NewRealSerialMux(name, pc.Path, pc.PortOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s port %s: %w", name, pc.Path, err)
	}
	log.Printf("opened %s port %s", name, pc.Path)
	return mux, nil
}

// simulatedADCP streams a generated tidal current at one ensemble per ping.
// Ensembles are generated as they are sent, so numbering and tidal phase
// advance for as long as the process runs.
func simulatedADCP(ping time.Duration) (serialmux.SerialMuxInterface, error) {
	opts := simulate.DefaultOptions()
	opts.PingInterval = ping
	opts.BadEvery = 7
	gen := simulate.NewGenerator(opts)
	log.Printf("simulating ADCP with an ensemble every %s", ping)
	return serialmux.NewGeneratedSerialMux("adcp", gen.Line, ping), nil
}
