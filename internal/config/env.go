package config

import (
	"fmt"
	"net"
	"os"
)

// ApplyEnv applies environment overrides to opts.
//
//	XR_SERVER            render server address
//	XR_SIGNALLING_TOKEN  signalling bearer token
//	XR_DEVICE_MODEL      device model name
//	XR_LOG_LEVEL         debug, info, warn, error
//	XR_LOG_FORMAT        text or json
func ApplyEnv(opts *Options) {
	if v := os.Getenv("XR_SERVER"); v != "" {
		opts.ServerAddress = v
	}
	if v := os.Getenv("XR_SIGNALLING_TOKEN"); v != "" {
		opts.SignallingToken = v
	}
	if v := os.Getenv("XR_DEVICE_MODEL"); v != "" {
		opts.DeviceModel = v
	}
	if v := os.Getenv("XR_LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}
	if v := os.Getenv("XR_LOG_FORMAT"); v != "" {
		opts.LogFormat = v
	}
}

// SignallingURL returns the websocket signalling URL for a server address.
// The default signalling port is used when addr has none.
func SignallingURL(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultSignallingPort)
	}
	return fmt.Sprintf("ws://%s/signalling", addr)
}

// DefaultSignallingPort is the render server's signalling port.
const DefaultSignallingPort = "48010"
