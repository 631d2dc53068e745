package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/vaughan0/go-ini"

	"duet/internal/jobs"
)

const (
	// ConfigFile is the ini file read from the node home.
	ConfigFile = "duet.conf"
	// LogFile receives the node log inside the home.
	LogFile = "duet.log"

	envMasterSecret = "DUET_MASTER_SECRET"
	envAppSecret    = "DUET_APP_SECRET"
)

var errIniNotFound = errors.New("not found")

// Config holds runtime wiring options for building the node.
type Config struct {
	Home            string        // node directory, e.g. ~/.duet
	RelayURL        string        // relay websocket, e.g. ws://127.0.0.1:8080/ws
	AppSecret       string        // pre-shared relay secret
	MasterSecret    string        // encrypts keys and ratchet state at rest
	DatabaseURL     string        // optional Postgres chat directory
	ResolveInterval time.Duration // job scheduler period
	Debug           bool
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Home:            "~/.duet",
		RelayURL:        "ws://127.0.0.1:8080/ws",
		ResolveInterval: jobs.DefaultInterval,
	}
}

// LoadConfig reads <home>/duet.conf over the defaults (a missing file is
// fine), then applies environment overrides. An empty home selects the
// default. All paths have ~ expanded.
//
//	[node]
//	relay = ws://relay.example:8080/ws
//	appsecret = ...
//	mastersecret = ...
//	databaseurl = postgres://...
//	resolveinterval = 5s
//
//	[log]
//	debug = yes
func LoadConfig(home string) (Config, error) {
	c := DefaultConfig()
	if home != "" {
		c.Home = home
	}
	var err error
	c.Home, err = homedir.Expand(c.Home)
	if err != nil {
		return Config{}, err
	}

	filename := filepath.Join(c.Home, ConfigFile)
	fi, err := os.Stat(filename)
	switch {
	case err == nil && fi.IsDir():
		return Config{}, fmt.Errorf("%s is not a valid configuration file", filename)
	case err == nil:
		if err := c.loadFile(filename); err != nil {
			return Config{}, err
		}
	case !os.IsNotExist(err):
		return Config{}, err
	}

	if v := os.Getenv(envMasterSecret); v != "" {
		c.MasterSecret = v
	}
	if v := os.Getenv(envAppSecret); v != "" {
		c.AppSecret = v
	}
	return c, nil
}

func (c *Config) loadFile(filename string) error {
	cfg, err := ini.LoadFile(filename)
	if err != nil {
		return err
	}

	if v, ok := cfg.Get("node", "relay"); ok {
		c.RelayURL = v
	}
	if v, ok := cfg.Get("node", "appsecret"); ok {
		c.AppSecret = v
	}
	if v, ok := cfg.Get("node", "mastersecret"); ok {
		c.MasterSecret = v
	}
	if v, ok := cfg.Get("node", "databaseurl"); ok {
		c.DatabaseURL = v
	}
	if v, ok := cfg.Get("node", "resolveinterval"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("resolveinterval invalid: %q", v)
		}
		c.ResolveInterval = d
	}

	err = iniBool(cfg, &c.Debug, "log", "debug")
	if err != nil && !errors.Is(err, errIniNotFound) {
		return err
	}
	return nil
}

func iniBool(cfg ini.File, p *bool, section, key string) error {
	v, ok := cfg.Get(section, key)
	if !ok {
		return errIniNotFound
	}
	switch strings.ToLower(v) {
	case "yes", "true", "1":
		*p = true
	case "no", "false", "0":
		*p = false
	default:
		return fmt.Errorf("[%s] %s must be yes or no, got %q", section, key, v)
	}
	return nil
}
