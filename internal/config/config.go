// Package config loads the daemon's own startup knobs.
//
// Loading follows the teacher's shared/config.go + main.go shape: a .env
// file is read with godotenv (missing file is not fatal, a malformed one
// is), then a handful of environment variables are parsed into a Config
// value once at startup.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultRobotTCPPort  = 8101
	defaultStatusAddr    = "127.0.0.1:8787"
	defaultSSHUserA      = "pi"
	defaultSSHPassA      = "raspberry"
	defaultSSHUserB      = "pi"
	defaultSSHPassB      = "raspberry"
	RemoteStudentCodePath = "/home/pi/runtime/executor/studentcode.py"
)

// Credential is a username/password pair for one robot_kind.
type Credential struct {
	User string
	Pass string
}

type Config struct {
	// DebugMode gates logging.DEBUG_MODE.
	DebugMode bool
	// RobotTCPPort is the remote robot's framed-protobuf TCP port (§6: 8101).
	RobotTCPPort int
	// StatusAddr is the loopback bind address for the diagnostics HTTP
	// surface. Empty disables it entirely.
	StatusAddr string
	// BaseDir holds the rendezvous sockets and the scratch log file.
	BaseDir string
	// Force, when true, removes a pre-existing rendezvous socket file
	// instead of refusing to start.
	Force bool

	CredentialA Credential
	CredentialB Credential
}

// Load reads ./.env if present and parses environment variables into a
// Config. Unset variables fall back to their documented defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	cfg := &Config{
		DebugMode:    os.Getenv("DEBUG") == "true",
		RobotTCPPort: defaultRobotTCPPort,
		StatusAddr:   defaultStatusAddr,
		BaseDir:      os.TempDir(),
		CredentialA: Credential{User: defaultSSHUserA, Pass: defaultSSHPassA},
		CredentialB: Credential{User: defaultSSHUserB, Pass: defaultSSHPassB},
	}

	if v := os.Getenv("ROBOT_TCP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.RobotTCPPort = port
	}
	if v, ok := os.LookupEnv("DAYBREAK_STATUS_ADDR"); ok {
		cfg.StatusAddr = v
	}
	if v := os.Getenv("DAYBREAK_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("SSH_USER_A"); v != "" {
		cfg.CredentialA.User = v
	}
	if v := os.Getenv("SSH_PASS_A"); v != "" {
		cfg.CredentialA.Pass = v
	}
	if v := os.Getenv("SSH_USER_B"); v != "" {
		cfg.CredentialB.User = v
	}
	if v := os.Getenv("SSH_PASS_B"); v != "" {
		cfg.CredentialB.Pass = v
	}

	return cfg, nil
}

// CredentialFor selects the SSH credential pair for a robot_kind byte.
// The wire encodes robot_kind as an ASCII letter ('A' or 'B'); anything
// else falls back to kind A rather than failing CONNECT outright.
func (c *Config) CredentialFor(kind byte) Credential {
	if kind == 'B' {
		return c.CredentialB
	}
	return c.CredentialA
}
