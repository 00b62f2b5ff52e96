package config

import (
	"encoding/base64"
	"fmt"
)

const DefaultMaxHistory = 500

type Config struct {
	ServerAddr     string
	DatabasePath   string
	DataDir        string
	PublicDir      string
	SigningKey     []byte
	AllowedOrigins []string
	MaxHistory     int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databasePath, dataDir, publicDir, base64Secret string, allowedOrigins []string, maxHistory int) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databasePath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabasePath:   databasePath,
		DataDir:        dataDir,
		PublicDir:      publicDir,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		MaxHistory:     maxHistory,
	}, nil
}
