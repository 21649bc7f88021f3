package config

import (
	"os"
	"strings"
	"testing"
)

// setRequiredEnv устанавливает минимально необходимые переменные окружения
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("API_TOKEN", "control-surface-token")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Engine.MaxAttempts != 10 {
		t.Errorf("default MaxAttempts = %d, want 10", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.MinComboPrice != 0.70 {
		t.Errorf("default MinComboPrice = %v, want 0.70", cfg.Engine.MinComboPrice)
	}
	if cfg.Engine.TimeValueUpper <= cfg.Engine.TimeValueLower {
		t.Error("default tier thresholds must be ordered")
	}
	if cfg.Database.Name != "spreadpilot" {
		t.Errorf("default DB name = %s", cfg.Database.Name)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing encryption key",
			env:     map[string]string{"ENCRYPTION_KEY": ""},
			wantErr: "ENCRYPTION_KEY",
		},
		{
			name:    "short encryption key",
			env:     map[string]string{"ENCRYPTION_KEY": "too-short"},
			wantErr: "at least 16",
		},
		{
			name:    "missing api token",
			env:     map[string]string{"API_TOKEN": ""},
			wantErr: "API_TOKEN",
		},
		{
			name:    "zero ladder attempts",
			env:     map[string]string{"LADDER_MAX_ATTEMPTS": "0"},
			wantErr: "LADDER_MAX_ATTEMPTS",
		},
		{
			name:    "too many ladder attempts",
			env:     map[string]string{"LADDER_MAX_ATTEMPTS": "50"},
			wantErr: "LADDER_MAX_ATTEMPTS",
		},
		{
			name:    "negative price step",
			env:     map[string]string{"LADDER_PRICE_STEP": "-0.05"},
			wantErr: "LADDER_PRICE_STEP",
		},
		{
			name: "inverted risk thresholds",
			env: map[string]string{
				"RISK_TV_UPPER": "0.10",
				"RISK_TV_LOWER": "0.30",
			},
			wantErr: "RISK_TV_UPPER",
		},
		{
			name:    "fill poll above attempt timeout",
			env:     map[string]string{"LADDER_FILL_POLL": "1m"},
			wantErr: "LADDER_FILL_POLL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDSNWithoutPassword(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "svc", Password: "secret", Name: "spreadpilot", SSLMode: "disable",
	}

	if strings.Contains(d.DSNWithoutPassword(), "secret") {
		t.Error("DSNWithoutPassword must not contain the password")
	}
	if !strings.Contains(d.DSN(), "password=secret") {
		t.Error("DSN must contain the password")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Unsetenv("SPREADPILOT_TEST_MISSING")

	if got := getEnv("SPREADPILOT_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("getEnv default = %q", got)
	}

	t.Setenv("SPREADPILOT_TEST_FLOAT", "not-a-number")
	if got := getEnvAsFloat("SPREADPILOT_TEST_FLOAT", 0.05); got != 0.05 {
		t.Errorf("getEnvAsFloat on garbage = %v, want default", got)
	}

	t.Setenv("SPREADPILOT_TEST_DUR", "45s")
	if got := getEnvAsDuration("SPREADPILOT_TEST_DUR", 0); got.Seconds() != 45 {
		t.Errorf("getEnvAsDuration = %v, want 45s", got)
	}
}
