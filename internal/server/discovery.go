package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"

	"github.com/ezaalfandy/proscore-vardroid-sub000/internal/protocol"
)

const (
	// discoveryService is the mDNS service name cameras browse for.
	discoveryService = "_varcoord._tcp"
	discoveryDomain  = "local."
)

// startDiscovery advertises the coordinator on the local network so
// cameras can find it without a typed-in address. Returns a stop
// function, nil when advertisement is disabled.
func (app *App) startDiscovery() (func(), error) {
	if !app.Config.Discovery.Enabled {
		return nil, nil
	}

	port := app.Config.Discovery.Port
	if port == 0 {
		parsed, err := listenPort(app.Config.App.Address)
		if err != nil {
			return nil, err
		}
		port = parsed
	}

	txt := []string{
		"proto_version=" + strconv.Itoa(protocol.Version),
		"console=/api/v1",
		"ws=/ws",
	}

	mdnsServer, err := zeroconf.Register(app.Config.Discovery.Instance, discoveryService, discoveryDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	log.Info().Str("service", "discovery").Str("instance", app.Config.Discovery.Instance).Int("port", port).Msg("advertising coordinator over mDNS")

	return mdnsServer.Shutdown, nil
}

func listenPort(address string) (int, error) {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("parse listen address: %w", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse listen port: %w", err)
	}

	return port, nil
}
