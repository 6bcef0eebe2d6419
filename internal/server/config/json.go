package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// "24h" strings and integer nanoseconds. Absent keys leave the current value
// untouched, hence the pointers.
type JsonConfig struct {
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc"`
	DatabaseDriver               *string         `json:"database_driver"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	Issuer                       *string         `json:"issuer"`
	Audience                     *string         `json:"audience"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	PasswordAlgorithm            *string         `json:"password_algorithm"`
	Argon2Time                   *uint32         `json:"argon2_time"`
	Argon2MemoryKiB              *uint32         `json:"argon2_memory_kib"`
	Argon2Threads                *uint8          `json:"argon2_threads"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	AdminUsers                   []string        `json:"admin_users"`
	LogFormat                    *string         `json:"log_format"`
	LogLevel                     *string         `json:"log_level"`
	CORSAllowedOrigins           []string        `json:"cors_allowed_origins"`
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// parseJson overlays the file named by -c/-config onto config. Without such a
// flag it does nothing.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var c JsonConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setIf(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setIf(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIf(&config.DatabaseDriver, c.DatabaseDriver)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.SecretKey, c.SecretKey)
	setIf(&config.Issuer, c.Issuer)
	setIf(&config.Audience, c.Audience)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setIf(&config.PasswordAlgorithm, c.PasswordAlgorithm)
	setIf(&config.Argon2Time, c.Argon2Time)
	setIf(&config.Argon2MemoryKiB, c.Argon2MemoryKiB)
	setIf(&config.Argon2Threads, c.Argon2Threads)
	setIf(&config.BcryptCost, c.BcryptCost)
	if c.AdminUsers != nil {
		config.AdminUsers = c.AdminUsers
	}
	setIf(&config.LogFormat, c.LogFormat)
	setIf(&config.LogLevel, c.LogLevel)
	if c.CORSAllowedOrigins != nil {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}

	return nil
}
