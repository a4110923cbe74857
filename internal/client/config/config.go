// Package config loads settings for the rideauth CLI: built-in defaults,
// then an optional JSON file (-c/-config), then flags.
//
//	-a string   address:port of the rideauth gRPC endpoint
//	-t int      per-request timeout in seconds
//
// JSON uses timex.Duration, so the timeout may be "5s" or nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "request_timeout": "5s"
//	}
package config

import "time"

type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig applies defaults, JSON and flags from args, later sources
// taking precedence.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
