package config

import (
	"flag"
	"fmt"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
//	-a string    HTTP bind address (":8080")
//	-g string    gRPC bind address (":50051")
//	-driver      database driver, pgx or sqlite
//	-d string    database DSN
//	-s string    HS512 signing key, at least 64 bytes
//	-t duration  access token validity ("24h")
//	-r duration  refresh token validity ("168h")
//	-hash        password algorithm, argon2id or bcrypt
//	-admins      comma-separated usernames that register as Admin
//	-log-format  zerolog, json or text
//	-log-level   debug, info, warn or error
//
// Only these flags are looked at; anything else in args is ignored so other
// flag sets can share os.Args.
func parseFlags(config *Config, args []string) error {
	known := []string{"-a", "-g", "-driver", "-d", "-s", "-t", "-r", "-hash", "-admins", "-log-format", "-log-level"}
	args = flagx.FilterArgs(args, known)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver (pgx|sqlite)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token signing key")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.StringVar(&config.PasswordAlgorithm, "hash", config.PasswordAlgorithm, "password hashing algorithm (argon2id|bcrypt)")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (zerolog|json|text)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	admins := flagx.StringList(config.AdminUsers)
	fs.Var(&admins, "admins", "comma-separated admin usernames")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	config.AdminUsers = admins

	return nil
}
