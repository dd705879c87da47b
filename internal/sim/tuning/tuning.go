package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz      int  `yaml:"tick_rate_hz"`
	HeartbeatMs     int  `yaml:"heartbeat_ms"`
	StopOnFailure   bool `yaml:"stop_on_failure"`
	TaskReplayTTLMs int  `yaml:"task_replay_ttl_ms"`
	SceneLoadMs     int  `yaml:"scene_load_ms"`
	InitWaitMs      int  `yaml:"init_wait_ms"`
	ForceFallback   bool `yaml:"force_fallback"`

	Debug      Debug      `yaml:"debug"`
	Navigation Navigation `yaml:"navigation"`
	Proximity  Proximity  `yaml:"proximity"`
	Visibility Visibility `yaml:"visibility"`

	Emotes   []EmoteSpec `yaml:"emotes"`
	Items    []ItemSpec  `yaml:"items"`
	Levels   []LevelSpec `yaml:"levels"`
	Fallback GameData    `yaml:"fallback"`
}

type Debug struct {
	LogInfo    bool `yaml:"log_info"`
	LogWarning bool `yaml:"log_warning"`
}

type Navigation struct {
	ReissueMs     int     `yaml:"reissue_ms"`
	FollowStopMin float64 `yaml:"follow_stop_min"`
	FollowStopMax float64 `yaml:"follow_stop_max"`
	Speed         float64 `yaml:"speed"`
}

type Proximity struct {
	CharacterRadius float64 `yaml:"character_radius"`
	AreaProbeRadius float64 `yaml:"area_probe_radius"`
	BodyRadius      float64 `yaml:"body_radius"`
}

type Visibility struct {
	FOVDeg    float64 `yaml:"fov_deg"`
	EyeHeight float64 `yaml:"eye_height"`
}

type EmoteSpec struct {
	ID   int    `yaml:"id"`
	Kind string `yaml:"kind"`
}

type ItemSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type LevelSpec struct {
	Name  string     `yaml:"name"`
	Title string     `yaml:"title"`
	Areas []AreaSpec `yaml:"areas"`
}

type AreaSpec struct {
	Key    string  `yaml:"key"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Z      float64 `yaml:"z"`
	Radius float64 `yaml:"radius"`
}

// GameData is the initialization used when the orchestrator never sends one.
type GameData struct {
	Scene  string      `yaml:"scene"`
	Agents []AgentSpec `yaml:"agents"`
}

type AgentSpec struct {
	ID        string  `yaml:"id"`
	Username  string  `yaml:"username"`
	ModelPath string  `yaml:"model_path"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Z         float64 `yaml:"z"`
	Yaw       float64 `yaml:"yaw"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:      20,
		HeartbeatMs:     200,
		StopOnFailure:   true,
		TaskReplayTTLMs: 30_000,
		SceneLoadMs:     500,
		InitWaitMs:      5_000,
		Debug:           Debug{LogWarning: true},
		Navigation: Navigation{
			ReissueMs:     300,
			FollowStopMin: 0.6,
			FollowStopMax: 2.0,
			Speed:         3.5,
		},
		Proximity: Proximity{
			CharacterRadius: 10,
			AreaProbeRadius: 0.5,
			BodyRadius:      0.4,
		},
		Visibility: Visibility{FOVDeg: 120, EyeHeight: 0.75},
		Emotes: []EmoteSpec{
			{ID: 1, Kind: "Wave"},
			{ID: 2, Kind: "Clap"},
			{ID: 3, Kind: "Dance"},
			{ID: 4, Kind: "Sit"},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults and tidies names.
func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.HeartbeatMs <= 0 {
		t.HeartbeatMs = d.HeartbeatMs
	}
	if t.TaskReplayTTLMs < 0 {
		t.TaskReplayTTLMs = 0
	}
	if t.SceneLoadMs < 0 {
		t.SceneLoadMs = 0
	}
	if t.InitWaitMs < 0 {
		t.InitWaitMs = 0
	}
	if t.Navigation.ReissueMs <= 0 {
		t.Navigation.ReissueMs = d.Navigation.ReissueMs
	}
	if t.Navigation.FollowStopMin <= 0 && t.Navigation.FollowStopMax <= 0 {
		t.Navigation.FollowStopMin = d.Navigation.FollowStopMin
		t.Navigation.FollowStopMax = d.Navigation.FollowStopMax
	}
	if t.Navigation.Speed <= 0 {
		t.Navigation.Speed = d.Navigation.Speed
	}
	if t.Proximity.CharacterRadius <= 0 {
		t.Proximity.CharacterRadius = d.Proximity.CharacterRadius
	}
	if t.Proximity.AreaProbeRadius <= 0 {
		t.Proximity.AreaProbeRadius = d.Proximity.AreaProbeRadius
	}
	if t.Proximity.BodyRadius <= 0 {
		t.Proximity.BodyRadius = d.Proximity.BodyRadius
	}
	if t.Visibility.FOVDeg <= 0 {
		t.Visibility.FOVDeg = d.Visibility.FOVDeg
	}
	if t.Visibility.EyeHeight <= 0 {
		t.Visibility.EyeHeight = d.Visibility.EyeHeight
	}
	for i := range t.Levels {
		t.Levels[i].Name = strings.TrimSpace(t.Levels[i].Name)
		for j := range t.Levels[i].Areas {
			a := &t.Levels[i].Areas[j]
			a.Key = strings.TrimSpace(a.Key)
			if a.Radius <= 0 {
				a.Radius = 1
			}
		}
	}
	t.Fallback.Scene = strings.TrimSpace(t.Fallback.Scene)
}

func (t Tuning) Validate() error {
	if t.Navigation.FollowStopMin > t.Navigation.FollowStopMax {
		return fmt.Errorf("navigation.follow_stop_min %.2f exceeds follow_stop_max %.2f",
			t.Navigation.FollowStopMin, t.Navigation.FollowStopMax)
	}
	if t.Visibility.FOVDeg > 360 {
		return fmt.Errorf("visibility.fov_deg must be <= 360")
	}
	emotes := map[int]struct{}{}
	for _, e := range t.Emotes {
		if e.ID <= 0 {
			return fmt.Errorf("emote %q: id must be positive", e.Kind)
		}
		if _, dup := emotes[e.ID]; dup {
			return fmt.Errorf("duplicate emote id %d", e.ID)
		}
		emotes[e.ID] = struct{}{}
	}
	items := map[string]struct{}{}
	for _, it := range t.Items {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("item with empty id")
		}
		if _, dup := items[it.ID]; dup {
			return fmt.Errorf("duplicate item id %q", it.ID)
		}
		items[it.ID] = struct{}{}
	}
	levels := map[string]struct{}{}
	for _, l := range t.Levels {
		if l.Name == "" {
			return fmt.Errorf("level with empty name")
		}
		if _, dup := levels[l.Name]; dup {
			return fmt.Errorf("duplicate level %q", l.Name)
		}
		levels[l.Name] = struct{}{}
		keys := map[string]struct{}{}
		for _, a := range l.Areas {
			if a.Key == "" {
				return fmt.Errorf("level %q: area with empty key", l.Name)
			}
			if _, dup := keys[a.Key]; dup {
				return fmt.Errorf("level %q: duplicate area %q", l.Name, a.Key)
			}
			keys[a.Key] = struct{}{}
		}
	}
	if t.Fallback.Scene != "" {
		if _, ok := levels[t.Fallback.Scene]; !ok {
			return fmt.Errorf("fallback.scene %q is not a known level", t.Fallback.Scene)
		}
	}
	for _, a := range t.Fallback.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("fallback agent %q has empty id", a.Username)
		}
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) Heartbeat() time.Duration {
	return time.Duration(t.HeartbeatMs) * time.Millisecond
}

func (t Tuning) Reissue() time.Duration {
	return time.Duration(t.Navigation.ReissueMs) * time.Millisecond
}

func (t Tuning) SceneLoadDelay() time.Duration {
	return time.Duration(t.SceneLoadMs) * time.Millisecond
}

func (t Tuning) InitWait() time.Duration {
	return time.Duration(t.InitWaitMs) * time.Millisecond
}

func (t Tuning) TaskReplayTTL() time.Duration {
	return time.Duration(t.TaskReplayTTLMs) * time.Millisecond
}
