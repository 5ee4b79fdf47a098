// Package fusion implements the multi-provider arbitration engine: it
// calibrates candidate confidences, groups agreeing candidates into slots,
// selects a winner per slot, back-fills missing fields, validates the result
// and drives the bounded escalation state machine.
package fusion

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/semaj-12/7M-Quote-sub001/internal/domain/entity"
)

// Mode controls how many providers participate and whether escalation may
// pay for additional extraction calls.
type Mode string

const (
	// ModeSingle considers only the primary provider. No escalation.
	ModeSingle Mode = "single"
	// ModeShadow runs background providers for telemetry but never lets
	// them alter the accepted candidate. No escalation.
	ModeShadow Mode = "shadow"
	// ModeHotspot escalates low-confidence or invalid slots through
	// EscalationOrder, one provider at a time.
	ModeHotspot Mode = "hotspot"
	// ModeFull runs every provider up front; escalation is a label only.
	ModeFull Mode = "full"
)

// Valid reports whether m is a known ensemble mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeShadow, ModeHotspot, ModeFull:
		return true
	}
	return false
}

var (
	ErrInvalidMode          = errors.New("invalid ensemble mode")
	ErrPrimaryRequired      = errors.New("primary_provider is required")
	ErrThresholdRange       = errors.New("low_conf_threshold must be in [0,1]")
	ErrBoostNegative        = errors.New("agreement_boost must be >= 0")
	ErrEpsilonNonPositive   = errors.New("epsilons must be > 0")
	ErrMaxReasonableIn      = errors.New("max_reasonable_in must be > 0")
	ErrOverlapRange         = errors.New("overlap thresholds must be in (0,1]")
	ErrWeightMissing        = errors.New("missing provider weight")
	ErrOwnerUnknownType     = errors.New("ownership default references unknown entity type")
	ErrEscalationNeedsOrder = errors.New("hotspot mode requires a non-empty escalation_order")
)

// WeldCombo is an allow-listed (symbol, process, side) combination.
type WeldCombo struct {
	Symbol  string `yaml:"symbol" json:"symbol"`
	Process string `yaml:"process" json:"process"`
	Side    string `yaml:"side" json:"side"`
}

// Config is the read-only ensemble configuration for one fusion run.
// It is threaded explicitly through every component call; nothing in this
// package reads process-wide state.
type Config struct {
	Mode            Mode   `yaml:"mode" json:"mode"`
	PrimaryProvider string `yaml:"primary_provider" json:"primary_provider"`

	LowConfThreshold float64 `yaml:"low_conf_threshold" json:"low_conf_threshold"`
	AgreementBoost   float64 `yaml:"agreement_boost" json:"agreement_boost"`

	// Dimension agreement epsilons. Values normalized to inches are
	// compared against EpsilonIn; two metric sources are compared in
	// millimetres against EpsilonMM.
	EpsilonIn       float64 `yaml:"epsilon_in" json:"epsilon_in"`
	EpsilonMM       float64 `yaml:"epsilon_mm" json:"epsilon_mm"`
	MaxReasonableIn float64 `yaml:"max_reasonable_in" json:"max_reasonable_in"`

	// Geometric agreement thresholds for non-dimension entities.
	BBoxOverlap        float64 `yaml:"bbox_overlap" json:"bbox_overlap"`
	TableHeaderOverlap float64 `yaml:"table_header_overlap" json:"table_header_overlap"`

	// Table sanity checks.
	TableSumTolerance    float64  `yaml:"table_sum_tolerance" json:"table_sum_tolerance"`
	TableMinColumns      int      `yaml:"table_min_columns" json:"table_min_columns"`
	TableRequiredHeaders []string `yaml:"table_required_headers" json:"table_required_headers"`

	// Weld sanity allow-list.
	WeldAllowed []WeldCombo `yaml:"weld_allowed" json:"weld_allowed"`

	EscalationOrder   []string      `yaml:"escalation_order" json:"escalation_order"`
	EscalationTimeout time.Duration `yaml:"escalation_timeout" json:"escalation_timeout"`

	// ProviderWeights[entity type][provider] scales calibrated confidence
	// during arbitration. A missing entry for an encountered pair is a
	// fatal configuration error at run start.
	ProviderWeights map[entity.Type]map[string]float64 `yaml:"provider_weights" json:"provider_weights"`

	// OwnershipDefaults names the provider that wins ties per entity type.
	OwnershipDefaults map[entity.Type]string `yaml:"ownership_defaults" json:"ownership_defaults"`

	ValidatorEnabled   bool `yaml:"validator_enabled" json:"validator_enabled"`
	AdjudicatorEnabled bool `yaml:"adjudicator_enabled" json:"adjudicator_enabled"`

	// MaxParallel bounds concurrent slot pipelines. 0 means one goroutine
	// per slot.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel"`
}

// DefaultWeldAllowed is the built-in (symbol, process, side) allow-list used
// when the config does not override it.
var DefaultWeldAllowed = []WeldCombo{
	{Symbol: "fillet", Process: "GMAW", Side: "arrow"},
	{Symbol: "fillet", Process: "GMAW", Side: "other"},
	{Symbol: "fillet", Process: "SMAW", Side: "arrow"},
	{Symbol: "fillet", Process: "SMAW", Side: "other"},
	{Symbol: "fillet", Process: "FCAW", Side: "arrow"},
	{Symbol: "groove", Process: "GMAW", Side: "arrow"},
	{Symbol: "groove", Process: "SMAW", Side: "arrow"},
	{Symbol: "groove", Process: "SAW", Side: "arrow"},
	{Symbol: "plug", Process: "GMAW", Side: "arrow"},
	{Symbol: "spot", Process: "GTAW", Side: "arrow"},
	{Symbol: "seam", Process: "GTAW", Side: "arrow"},
}

// DefaultConfig returns a Config with the defaults used in local development.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeHotspot,
		PrimaryProvider:    "reducto",
		LowConfThreshold:   0.55,
		AgreementBoost:     0.07,
		EpsilonIn:          0.05,
		EpsilonMM:          1.0,
		MaxReasonableIn:    1200,
		BBoxOverlap:        0.4,
		TableHeaderOverlap: 0.6,
		TableSumTolerance:  0.01,
		TableMinColumns:    2,
		WeldAllowed:        DefaultWeldAllowed,
		EscalationOrder:    []string{"textract", "donut", "layoutlmv3"},
		EscalationTimeout:  20 * time.Second,
		ProviderWeights:    map[entity.Type]map[string]float64{},
		OwnershipDefaults: map[entity.Type]string{
			entity.TypeTable:     "reducto",
			entity.TypeDimension: "reducto",
			entity.TypeWeld:      "reducto",
			entity.TypeNote:      "textract",
			entity.TypeSection:   "reducto",
		},
		ValidatorEnabled:   true,
		AdjudicatorEnabled: true,
		MaxParallel:        8,
	}
}

// Validate checks the structural correctness of the config.
func (c *Config) Validate() error {
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if c.PrimaryProvider == "" {
		return ErrPrimaryRequired
	}
	if c.LowConfThreshold < 0 || c.LowConfThreshold > 1 {
		return ErrThresholdRange
	}
	if c.AgreementBoost < 0 {
		return ErrBoostNegative
	}
	if c.EpsilonIn <= 0 || c.EpsilonMM <= 0 {
		return ErrEpsilonNonPositive
	}
	if c.MaxReasonableIn <= 0 {
		return ErrMaxReasonableIn
	}
	if c.BBoxOverlap <= 0 || c.BBoxOverlap > 1 || c.TableHeaderOverlap <= 0 || c.TableHeaderOverlap > 1 {
		return ErrOverlapRange
	}
	if c.Mode == ModeHotspot && len(c.EscalationOrder) == 0 {
		return ErrEscalationNeedsOrder
	}
	for et := range c.OwnershipDefaults {
		if !et.Valid() {
			return fmt.Errorf("%w: %q", ErrOwnerUnknownType, et)
		}
	}
	return nil
}

// Weight returns the arbitration weight for (entity type, provider).
func (c *Config) Weight(et entity.Type, provider string) (float64, bool) {
	byProv, ok := c.ProviderWeights[et]
	if !ok {
		return 0, false
	}
	w, ok := byProv[provider]
	return w, ok
}

// RequireWeights verifies that every (entity type, provider) pair that can be
// encountered in this run has a weight entry. An operational mistake, not a
// data problem, so callers fail the run rather than defaulting silently.
func (c *Config) RequireWeights(types []entity.Type, providers []string) error {
	for _, et := range types {
		for _, prov := range providers {
			if _, ok := c.Weight(et, prov); !ok {
				return fmt.Errorf("%w: entity_type=%s provider=%s", ErrWeightMissing, et, prov)
			}
		}
	}
	return nil
}

// Owner returns the ownership-default provider for an entity type, falling
// back to the primary provider.
func (c *Config) Owner(et entity.Type) string {
	if owner, ok := c.OwnershipDefaults[et]; ok && owner != "" {
		return owner
	}
	return c.PrimaryProvider
}

// WeldComboAllowed reports whether (symbol, process, side) is allow-listed.
func (c *Config) WeldComboAllowed(symbol, process, side string) bool {
	for _, combo := range c.WeldAllowed {
		if combo.Symbol == symbol && combo.Process == process && combo.Side == side {
			return true
		}
	}
	return false
}

// Hash returns the first 12 hex characters of the SHA-1 of the canonical
// JSON encoding of the config. Stamped on every decision record and summary
// so tuning changes are traceable across runs.
func (c *Config) Hash() string {
	data, err := json.Marshal(canonicalize(c))
	if err != nil {
		return "unknown"
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:12]
}

// canonicalize produces a deterministic representation: Go maps marshal in
// randomized order, so weight and ownership maps are flattened to sorted
// key/value lists first.
func canonicalize(c *Config) map[string]any {
	type kv struct {
		K string  `json:"k"`
		V float64 `json:"v"`
	}

	var weights []kv
	for et, byProv := range c.ProviderWeights {
		for prov, w := range byProv {
			weights = append(weights, kv{K: string(et) + "/" + prov, V: w})
		}
	}
	sort.Slice(weights, func(i, j int) bool { return weights[i].K < weights[j].K })

	var owners []string
	for et, prov := range c.OwnershipDefaults {
		owners = append(owners, string(et)+"="+prov)
	}
	sort.Strings(owners)

	return map[string]any{
		"mode":                   c.Mode,
		"primary_provider":       c.PrimaryProvider,
		"low_conf_threshold":     c.LowConfThreshold,
		"agreement_boost":        c.AgreementBoost,
		"epsilon_in":             c.EpsilonIn,
		"epsilon_mm":             c.EpsilonMM,
		"max_reasonable_in":      c.MaxReasonableIn,
		"bbox_overlap":           c.BBoxOverlap,
		"table_header_overlap":   c.TableHeaderOverlap,
		"table_sum_tolerance":    c.TableSumTolerance,
		"table_min_columns":      c.TableMinColumns,
		"table_required_headers": c.TableRequiredHeaders,
		"weld_allowed":           c.WeldAllowed,
		"escalation_order":       c.EscalationOrder,
		"escalation_timeout_ms":  c.EscalationTimeout.Milliseconds(),
		"provider_weights":       weights,
		"ownership_defaults":     owners,
		"validator_enabled":      c.ValidatorEnabled,
		"adjudicator_enabled":    c.AdjudicatorEnabled,
	}
}
