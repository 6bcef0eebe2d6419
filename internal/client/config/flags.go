package config

import (
	"flag"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags reads -a (server address) and -timeout (per-call timeout).
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-timeout"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the gRPC server")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "timeout for each server call")

	return fs.Parse(args)
}
