package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default configuration values (production)
const (
	DefaultDomain    = "huddle.qzz.io"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultOutputDir = "huddle-recordings"
)

// Config holds the call client configuration.
type Config struct {
	// Domain is the relay server domain
	Domain string

	// WebSocketURL is constructed from domain unless overridden
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// UDP port range for ICE, zero for any
	PortMin uint16
	PortMax uint16

	UserID string
	Token  string

	// Media device files
	Camera     string
	Microphone string
	Screen     string
	OutputDir  string

	AudioEnabled bool
	VideoEnabled bool

	// ManualStore selects the manual signaling transport when set
	ManualStore  string
	PollInterval time.Duration
}

// Options for loading config with CLI flag overrides. Nil pointers and empty
// strings mean the flag was not given.
type Options struct {
	Domain     string
	Server     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	PortMin    uint16
	PortMax    uint16

	UserID string
	Token  string

	Camera     string
	Microphone string
	Screen     string
	OutputDir  string

	Audio *bool
	Video *bool

	ManualStore  string
	PollInterval time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)

	wsURL := pick(opts.Server, "HUDDLE_SERVER", "")
	if wsURL == "" {
		wsURL = fmt.Sprintf("wss://%s/ws", domain)
	}

	audio, err := pickBool(opts.Audio, "HUDDLE_AUDIO", false)
	if err != nil {
		return nil, err
	}
	video, err := pickBool(opts.Video, "HUDDLE_VIDEO", true)
	if err != nil {
		return nil, err
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		if forceRelay, err = pickBool(nil, "FORCE_RELAY", false); err != nil {
			return nil, err
		}
	}

	poll := opts.PollInterval
	if poll == 0 {
		if v := os.Getenv("HUDDLE_POLL_INTERVAL"); v != "" {
			if poll, err = time.ParseDuration(v); err != nil {
				return nil, fmt.Errorf("invalid HUDDLE_POLL_INTERVAL: %w", err)
			}
		}
	}
	if poll < 0 {
		return nil, fmt.Errorf("poll interval must not be negative")
	}

	if opts.PortMin > opts.PortMax {
		return nil, fmt.Errorf("invalid UDP port range %d-%d", opts.PortMin, opts.PortMax)
	}

	// The relay announces a token holder under the token's user id, so the
	// local id has to be the same one.
	token := pick(opts.Token, "HUDDLE_TOKEN", "")
	userID := pick(opts.UserID, "HUDDLE_USER", "")
	if token != "" {
		claimed, err := TokenUserID(token)
		if err != nil {
			return nil, err
		}
		if userID != "" && userID != claimed {
			return nil, fmt.Errorf("user %q does not match the token's user %q", userID, claimed)
		}
		userID = claimed
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: wsURL,
		STUNServer:   pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:   pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:     pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:     pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:   forceRelay,
		PortMin:      opts.PortMin,
		PortMax:      opts.PortMax,
		UserID:       userID,
		Token:        token,
		Camera:       pick(opts.Camera, "HUDDLE_CAMERA", ""),
		Microphone:   pick(opts.Microphone, "HUDDLE_MICROPHONE", ""),
		Screen:       pick(opts.Screen, "HUDDLE_SCREEN", ""),
		OutputDir:    pick(opts.OutputDir, "HUDDLE_OUTPUT", DefaultOutputDir),
		AudioEnabled: audio,
		VideoEnabled: video,
		ManualStore:  pick(opts.ManualStore, "HUDDLE_MANUAL_STORE", ""),
		PollInterval: poll,
	}, nil
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenUserID reads the user_id claim of a relay token. The signature is not
// checked here; the relay does that.
func TokenUserID(token string) (string, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.UserID == "" {
		return "", errors.New("invalid token: missing user_id")
	}
	return claims.UserID, nil
}

// APIURL returns the relay's HTTP base URL.
func (c *Config) APIURL() string {
	return fmt.Sprintf("https://%s", c.Domain)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func pickBool(flag *bool, env string, def bool) (bool, error) {
	if flag != nil {
		return *flag, nil
	}
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %w", env, err)
		}
		return b, nil
	}
	return def, nil
}
