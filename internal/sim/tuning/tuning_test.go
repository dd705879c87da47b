package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if cfg.Heartbeat() != 200*time.Millisecond || cfg.Reissue() != 300*time.Millisecond {
		t.Fatalf("unexpected timings: heartbeat=%v reissue=%v", cfg.Heartbeat(), cfg.Reissue())
	}
	if !cfg.StopOnFailure {
		t.Fatalf("stop_on_failure should be true")
	}
	if len(cfg.Levels) == 0 || cfg.Fallback.Scene == "" || len(cfg.Fallback.Agents) == 0 {
		t.Fatalf("expected levels and fallback game data")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Visibility.FOVDeg != 120 || cfg.Visibility.EyeHeight != 0.75 {
		t.Fatalf("unexpected visibility defaults: %+v", cfg.Visibility)
	}
	if cfg.Navigation.FollowStopMin != 0.6 || cfg.Navigation.FollowStopMax != 2.0 {
		t.Fatalf("unexpected follow defaults: %+v", cfg.Navigation)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("heartbeat_ms: 50\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HeartbeatMs != 50 || cfg.TickRateHz != 20 || !cfg.StopOnFailure {
		t.Fatalf("unexpected merge: %+v", cfg)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Tuning){
		"follow range": func(c *Tuning) { c.Navigation.FollowStopMin, c.Navigation.FollowStopMax = 3, 1 },
		"dup emote":    func(c *Tuning) { c.Emotes = append(c.Emotes, EmoteSpec{ID: 1, Kind: "Again"}) },
		"dup area": func(c *Tuning) {
			c.Levels = []LevelSpec{{Name: "L", Areas: []AreaSpec{{Key: "a"}, {Key: "a"}}}}
		},
		"unknown fallback": func(c *Tuning) { c.Fallback.Scene = "Nowhere" },
	}
	for name, mutate := range cases {
		cfg := Defaults()
		mutate(&cfg)
		cfg.Normalize()
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if strings.TrimSpace(err.Error()) == "" {
			t.Fatalf("%s: empty error", name)
		}
	}
}
