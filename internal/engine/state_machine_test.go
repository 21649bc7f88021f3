package engine

import (
	"testing"

	"github.com/AIgen-Solutions-s-r-l/SpreadPilot-sub003/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		// Прямой путь
		{EpisodePricing, EpisodeMarginCheck, true},
		{EpisodeMarginCheck, EpisodeSubmitted, true},
		{EpisodeSubmitted, EpisodeWaiting, true},
		{EpisodeWaiting, EpisodeFilled, true},
		{EpisodeWaiting, EpisodeAdjusting, true},
		{EpisodeAdjusting, EpisodeSubmitted, true},

		// Терминальные отказы
		{EpisodePricing, EpisodeMidTooLow, true},
		{EpisodeMarginCheck, EpisodeNoMargin, true},
		{EpisodeAdjusting, EpisodeLimitReached, true},
		{EpisodePricing, EpisodeGatewayUnreachable, true},
		{EpisodeSubmitted, EpisodeGatewayUnreachable, true},
		{EpisodeWaiting, EpisodeGatewayUnreachable, true},
		{EpisodeAdjusting, EpisodeGatewayUnreachable, true},

		// Запрещённые переходы
		{EpisodePricing, EpisodeSubmitted, false},
		{EpisodePricing, EpisodeFilled, false},
		{EpisodeMarginCheck, EpisodeFilled, false},
		{EpisodeSubmitted, EpisodeFilled, false},
		{EpisodeAdjusting, EpisodeFilled, false},
		{EpisodeWaiting, EpisodeNoMargin, false},

		// Из терминальных выхода нет
		{EpisodeFilled, EpisodePricing, false},
		{EpisodeMidTooLow, EpisodeMarginCheck, false},
		{EpisodeNoMargin, EpisodeSubmitted, false},
		{EpisodeLimitReached, EpisodeAdjusting, false},
		{EpisodeGatewayUnreachable, EpisodePricing, false},

		// Неизвестные состояния
		{"UNKNOWN", EpisodePricing, false},
		{EpisodePricing, "UNKNOWN", false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{EpisodeFilled, EpisodeMidTooLow, EpisodeNoMargin, EpisodeLimitReached, EpisodeGatewayUnreachable}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}

	active := []string{EpisodePricing, EpisodeMarginCheck, EpisodeSubmitted, EpisodeWaiting, EpisodeAdjusting}
	for _, s := range active {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}

	if IsTerminal("UNKNOWN") {
		t.Error("unknown state must not be terminal")
	}
}

func TestTerminalAlertType(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{EpisodeMidTooLow, models.AlertTypeMidTooLow},
		{EpisodeNoMargin, models.AlertTypeNoMargin},
		{EpisodeLimitReached, models.AlertTypeLimitReached},
		{EpisodeGatewayUnreachable, models.AlertTypeGatewayUnreachable},
		{EpisodeFilled, ""},
		{EpisodeWaiting, ""},
	}

	for _, tt := range tests {
		if got := TerminalAlertType(tt.state); got != tt.want {
			t.Errorf("TerminalAlertType(%s) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
