// Package config holds the plain configuration structs passed explicitly
// into Aeternum's components, following the teacher's ManagerConfig /
// Params.WithDefaults() convention instead of package-level globals.
package config

import (
	"errors"
	"time"
)

// ErrClockSkewToleranceTooLarge is returned when a RecoveryConfig's
// ClockSkewTolerance is configured at or above the hard safety cap.
var ErrClockSkewToleranceTooLarge = errors.New("config: clock skew tolerance must be < 1h")

// Argon2Params configures the Argon2id derivation used on the mnemonic/
// passphrase unlock path that feeds the key hierarchy. Defaults target
// OWASP's current recommended minimums, tuned to land under 500ms on
// mobile hardware per spec.md §5.
type Argon2Params struct {
	TimeCost   uint32 // iterations
	MemoryKiB  uint32 // memory cost in KiB
	Threads    uint8
	KeyLenByte uint32
}

// WithDefaults fills unset fields with OWASP-recommended Argon2id defaults.
func (p Argon2Params) WithDefaults() Argon2Params {
	if p.TimeCost == 0 {
		p.TimeCost = 2
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = 19 * 1024 // 19 MiB, OWASP minimum
	}
	if p.Threads == 0 {
		p.Threads = 1
	}
	if p.KeyLenByte == 0 {
		p.KeyLenByte = 32
	}
	return p
}

// RecoveryConfig configures the recovery & veto window evaluator.
type RecoveryConfig struct {
	// VetoWindow is the duration during which a veto can abort a recovery
	// request. Defaults to 48h per spec.md §4.7.
	VetoWindow time.Duration

	// ClockSkewTolerance bounds the wall-clock tolerance applied when
	// evaluating the veto window (spec.md §9 Open Questions). Must stay
	// below 1 hour.
	ClockSkewTolerance time.Duration
}

// WithDefaults fills unset fields and validates the clock skew cap.
func (c RecoveryConfig) WithDefaults() (RecoveryConfig, error) {
	if c.VetoWindow == 0 {
		c.VetoWindow = 48 * time.Hour
	}
	if c.ClockSkewTolerance == 0 {
		c.ClockSkewTolerance = 5 * time.Minute
	}
	if c.ClockSkewTolerance >= time.Hour {
		return RecoveryConfig{}, ErrClockSkewToleranceTooLarge
	}
	return c, nil
}

// ShadowWriteConfig configures the shadow writer used by AUP and crash
// recovery.
type ShadowWriteConfig struct {
	// TempSuffix is appended to the target file name for the shadow temp
	// file. Defaults to ".tmp".
	TempSuffix string

	// FilePerm is the permission mode used for the temp file. Defaults to
	// 0600 (owner read/write only) since the file holds encrypted secret
	// material pending atomic commit.
	FilePerm uint32
}

// WithDefaults fills unset fields.
func (c ShadowWriteConfig) WithDefaults() ShadowWriteConfig {
	if c.TempSuffix == "" {
		c.TempSuffix = ".tmp"
	}
	if c.FilePerm == 0 {
		c.FilePerm = 0o600
	}
	return c
}

// AppConfig aggregates the core's configuration surface. Callers build one
// explicitly and pass its parts to the components that take them (no
// constructor takes an AppConfig as a whole); there is no global
// mutable configuration state anywhere in the core (spec.md §9).
type AppConfig struct {
	Argon2     Argon2Params
	Recovery   RecoveryConfig
	ShadowFile ShadowWriteConfig
	MaxSessions int
}

// WithDefaults resolves every nested config's defaults.
func (c AppConfig) WithDefaults() (AppConfig, error) {
	c.Argon2 = c.Argon2.WithDefaults()
	rec, err := c.Recovery.WithDefaults()
	if err != nil {
		return AppConfig{}, err
	}
	c.Recovery = rec
	c.ShadowFile = c.ShadowFile.WithDefaults()
	if c.MaxSessions <= 0 {
		c.MaxSessions = 16
	}
	return c, nil
}
