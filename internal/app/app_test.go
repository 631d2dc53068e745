package app_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"duet/internal/app"
	"duet/internal/jobs"
	"duet/internal/relay"
	"duet/internal/services/session"
)

func writeConf(t *testing.T, home, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(home, app.ConfigFile), []byte(body), 0o600); err != nil {
		t.Fatalf("write conf: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DUET_MASTER_SECRET", "")
	t.Setenv("DUET_APP_SECRET", "")
	home := t.TempDir()

	c, err := app.LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Home != home {
		t.Fatalf("home = %q", c.Home)
	}
	if c.RelayURL != app.DefaultConfig().RelayURL || c.ResolveInterval != jobs.DefaultInterval {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	writeConf(t, home, `
[node]
relay = ws://relay.test:9000/ws
appsecret = from-file
mastersecret = file-secret
resolveinterval = 250ms

[log]
debug = yes
`)
	t.Setenv("DUET_MASTER_SECRET", "env-secret")
	t.Setenv("DUET_APP_SECRET", "")

	c, err := app.LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.RelayURL != "ws://relay.test:9000/ws" || c.AppSecret != "from-file" {
		t.Fatalf("file values not read: %+v", c)
	}
	if c.MasterSecret != "env-secret" {
		t.Fatalf("env override ignored: %q", c.MasterSecret)
	}
	if c.ResolveInterval != 250*time.Millisecond || !c.Debug {
		t.Fatalf("interval/debug = %v/%v", c.ResolveInterval, c.Debug)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("DUET_MASTER_SECRET", "")
	home := t.TempDir()
	writeConf(t, home, "[log]\ndebug = maybe\n")
	if _, err := app.LoadConfig(home); err == nil {
		t.Fatal("expected error for bad boolean")
	}
	writeConf(t, home, "[node]\nresolveinterval = soon\n")
	if _, err := app.LoadConfig(home); err == nil {
		t.Fatal("expected error for bad interval")
	}
}

func TestCheckMasterSecret(t *testing.T) {
	for _, s := range []string{"short", "alllowercaseletters", "NoDigitsOrSymbols!", "N0Symb0lsHere12"} {
		if err := app.CheckMasterSecret(s); !errors.Is(err, app.ErrWeakSecret) {
			t.Fatalf("%q accepted", s)
		}
	}
	if err := app.CheckMasterSecret("Corr3ct-Horse-Battery"); err != nil {
		t.Fatalf("strong secret rejected: %v", err)
	}
}

func TestNewWire(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.Home = filepath.Join(t.TempDir(), "node")

	if _, err := app.NewWire(cfg, nil, nil, session.Hooks{}); !errors.Is(err, app.ErrNoMasterSecret) {
		t.Fatalf("got %v, want ErrNoMasterSecret", err)
	}

	cfg.MasterSecret = "Corr3ct-Horse-Battery"
	w, err := app.NewWire(cfg, nil, relay.NewLocalTransport(relay.NewHub(nil, nil)), session.Hooks{})
	if err != nil {
		t.Fatalf("NewWire: %v", err)
	}
	defer w.Close()
	if w.Session == nil || w.Identity == nil || w.Chats == nil {
		t.Fatal("wire incomplete")
	}
	if fi, err := os.Stat(cfg.Home); err != nil || !fi.IsDir() {
		t.Fatalf("home not created: %v", err)
	}
}
