// Package lockstepcfg holds YAML-backed configuration for the lockstep
// server and client binaries, in the style of tinyrange-cc's SiteConfig
// (cmd/ccapp/site_config.go): a plain struct with yaml tags, defaulted,
// and tolerant of a missing file.
package lockstepcfg

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/majg0/lockstep/pkg/endpoint"
)

// Server holds the server binary's tunables.
type Server struct {
	ListenAddr              string `yaml:"listen_addr"`
	MaxClients              int    `yaml:"max_clients"`
	NetworkFPS              int    `yaml:"network_fps"`
	ConnectionTimeoutMillis int    `yaml:"connection_timeout_millis"`
	ResendFrameInterval     int    `yaml:"resend_frame_interval"`
	MaxClientBytesPerSecond int    `yaml:"max_client_bytes_per_second"`
	MetricsAddr             string `yaml:"metrics_addr"`
	LogLevel                string `yaml:"log_level"`
}

// Client holds the client binary's tunables.
type Client struct {
	ServerAddr   string `yaml:"server_addr"`
	NetworkFPS   int    `yaml:"network_fps"`
	LogLevel     string `yaml:"log_level"`
}

// DefaultServer returns the server config with spec.md's stated defaults.
func DefaultServer() Server {
	return Server{
		ListenAddr:              ":4321",
		MaxClients:              8,
		NetworkFPS:              endpoint.NetworkFPS,
		ConnectionTimeoutMillis: int(endpoint.ConnectionTimeoutDuration.Milliseconds()),
		ResendFrameInterval:     endpoint.ResendFrameInterval,
		MaxClientBytesPerSecond: endpoint.MaxClientBytesPerSecond,
		MetricsAddr:             ":9100",
		LogLevel:                "info",
	}
}

// DefaultClient returns the client config with spec.md's stated defaults.
func DefaultClient() Client {
	return Client{
		ServerAddr: "127.0.0.1:4321",
		NetworkFPS: endpoint.NetworkFPS,
		LogLevel:   "info",
	}
}

// LoadServer reads and parses a server config file, falling back to
// DefaultServer if path is empty or the file doesn't exist.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadClient reads and parses a client config file, falling back to
// DefaultClient if path is empty or the file doesn't exist.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
