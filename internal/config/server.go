package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultServerAddr = ":8080"
	DefaultRedisDB    = 0
)

// ServerConfig holds the relay configuration.
type ServerConfig struct {
	Addr           string
	Environment    string
	AllowedOrigins []string

	// JWTSecret enables token verification on /ws when set
	JWTSecret string

	// RedisAddr enables the presence mirror when set
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ServerOptions struct {
	Addr           string
	AllowedOrigins []string
	JWTSecret      string
	RedisAddr      string
}

// LoadServer layers flags over environment over defaults, like Load.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := opts.Addr
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr == "" {
		addr = DefaultServerAddr
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	}

	db := DefaultRedisDB
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		db = n
	}

	return &ServerConfig{
		Addr:           addr,
		Environment:    pick("", "ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      pick(opts.JWTSecret, "JWT_SECRET", ""),
		RedisAddr:      pick(opts.RedisAddr, "REDIS_ADDR", ""),
		RedisPassword:  pick("", "REDIS_PASSWORD", ""),
		RedisDB:        db,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
