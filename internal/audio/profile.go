package audio

import (
	"time"

	"windy/internal/config"
)

type Kind int

const (
	KindWake Kind = iota
	KindConversation
)

func (k Kind) String() string {
	switch k {
	case KindWake:
		return "wake"
	case KindConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// Profile selects how a single capture listens.
type Profile struct {
	Kind                Kind
	Timeout             time.Duration // wait for a phrase to start
	PhraseTimeLimit     time.Duration // 0 = unbounded
	EnergyThreshold     float64       // int16 RMS units
	DynamicEnergy       bool
	PauseThreshold      time.Duration // silence that ends a phrase
	PhraseThreshold     time.Duration // minimum voiced length kept
	CalibrationDuration time.Duration
	Fallback            bool // allow the fallback chain after the listener gives up
}

func ProfileFromConfig(kind Kind, pc config.ProfileConfig) Profile {
	return Profile{
		Kind:                kind,
		Timeout:             pc.Timeout,
		PhraseTimeLimit:     pc.PhraseTimeLimit,
		EnergyThreshold:     pc.EnergyThreshold,
		DynamicEnergy:       pc.DynamicEnergy,
		PauseThreshold:      pc.PauseThreshold,
		PhraseThreshold:     pc.PhraseThreshold,
		CalibrationDuration: pc.CalibrationDuration,
		Fallback:            pc.Fallback,
	}
}
