package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTuningConfig_Defaults(t *testing.T) {
	cfg, err := LoadTuningConfig(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}

	if got := cfg.GetOuterWindowSize(); got != 29 {
		t.Errorf("GetOuterWindowSize = %d, want 29", got)
	}
	if got := cfg.GetGuardWindowSize(); got != 21 {
		t.Errorf("GetGuardWindowSize = %d, want 21", got)
	}
	if got := cfg.GetFalseAlarmProbability(); got != 1e-6 {
		t.Errorf("GetFalseAlarmProbability = %g, want 1e-6", got)
	}
	if got := cfg.GetClampPolicy(); got != "zero" {
		t.Errorf("GetClampPolicy = %q, want zero", got)
	}
	if got := cfg.GetChannels(); len(got) != 2 || got[0] != "HH" || got[1] != "HV" {
		t.Errorf("GetChannels = %v, want [HH HV]", got)
	}
}

func TestLoadTuningConfig_Partial(t *testing.T) {
	cfg, err := LoadTuningConfig(writeConfig(t, `{"outer_window_size": 49, "false_alarm_probability": 1e-4}`))
	if err != nil {
		t.Fatalf("LoadTuningConfig: %v", err)
	}
	if got := cfg.GetOuterWindowSize(); got != 49 {
		t.Errorf("GetOuterWindowSize = %d, want 49", got)
	}
	if got := cfg.GetFalseAlarmProbability(); got != 1e-4 {
		t.Errorf("GetFalseAlarmProbability = %g, want 1e-4", got)
	}
	// Untouched fields keep defaults
	if got := cfg.GetGuardWindowSize(); got != 21 {
		t.Errorf("GetGuardWindowSize = %d, want 21", got)
	}
}

func TestLoadTuningConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"even outer window", `{"outer_window_size": 28}`},
		{"negative guard window", `{"guard_window_size": -3}`},
		{"guard not smaller", `{"outer_window_size": 21, "guard_window_size": 21}`},
		{"pfa out of range", `{"false_alarm_probability": 1.5}`},
		{"bad clamp policy", `{"clamp_policy": "negative"}`},
		{"bad channel", `{"channels": ["VV"]}`},
		{"zero min pixels", `{"min_object_pixels": 0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadTuningConfig(writeConfig(t, tc.json)); err == nil {
				t.Errorf("expected error for %s", tc.json)
			}
		})
	}
}

func TestLoadTuningConfig_RejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(`{}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected error for non-.json extension")
	}
}
