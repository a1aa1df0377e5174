package service

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

//go:embed anomaly_thresholds.schema.json
var thresholdsSchemaJSON string

var thresholdsSchema = jsonschema.MustCompileString(
	"taxflow://schemas/anomaly-thresholds", thresholdsSchemaJSON)

// ThresholdRule is one configured check against a computed field.
type ThresholdRule struct {
	Field string `json:"field"`
	// MaxAbs flags when |value| exceeds this amount.
	MaxAbs *decimal.Decimal `json:"maxAbs,omitempty"`
	// MaxChangePct flags when the value moved more than this percentage
	// against the baseline (previous period) field. Skipped without a baseline.
	MaxChangePct *decimal.Decimal `json:"maxChangePct,omitempty"`
	// FlagProvenance flags when the field's source note is one of these.
	FlagProvenance []string `json:"flagProvenance,omitempty"`
	Severity       string   `json:"severity,omitempty"`
}

// Thresholds is the full anomaly rule set.
type Thresholds struct {
	Rules []ThresholdRule `json:"rules"`
}

// DefaultThresholds are applied when no rule file is configured.
func DefaultThresholds() Thresholds {
	tenMillion := decimal.NewFromInt(10_000_000)
	hundredPct := decimal.NewFromInt(100)
	return Thresholds{Rules: []ThresholdRule{
		{Field: "*", FlagProvenance: []string{string(SourceUnavailable)}, Severity: SeverityInfo},
		{Field: "*", FlagProvenance: []string{string(SourceEstimated)}, Severity: SeverityInfo},
		{Field: "G1", MaxAbs: &tenMillion, Severity: SeverityWarning},
		{Field: "G1", MaxChangePct: &hundredPct, Severity: SeverityWarning},
		{Field: "A3", MaxAbs: &tenMillion, Severity: SeverityWarning},
	}}
}

// ParseThresholds validates raw JSON against the embedded schema and decodes it.
func ParseThresholds(raw []byte) (Thresholds, error) {
	var document any
	if err := json.Unmarshal(raw, &document); err != nil {
		return Thresholds{}, fmt.Errorf("decode thresholds: %w", err)
	}
	if err := thresholdsSchema.Validate(document); err != nil {
		return Thresholds{}, fmt.Errorf("thresholds schema validation: %w", err)
	}
	var t Thresholds
	if err := json.Unmarshal(raw, &t); err != nil {
		return Thresholds{}, fmt.Errorf("decode thresholds: %w", err)
	}
	return t, nil
}

// LoadThresholds reads and validates a rule file.
func LoadThresholds(path string) (Thresholds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, err
	}
	return ParseThresholds(raw)
}

// Flag evaluates the rules against computed fields. Stateless and advisory:
// fields are never mutated and flags never block the report. A nil baseline
// skips percentage-change rules.
func Flag(fields ComplianceFields, baseline *ComplianceFields, thresholds Thresholds) []AnomalyFlag {
	var flags []AnomalyFlag

	for _, rule := range thresholds.Rules {
		severity := rule.Severity
		if severity == "" {
			severity = SeverityWarning
		}
		for _, code := range fieldOrder(fields.Kind) {
			if rule.Field != "*" && !strings.EqualFold(rule.Field, code) {
				continue
			}
			value, ok := fields.Fields[code]
			if !ok {
				continue
			}

			if len(rule.FlagProvenance) > 0 {
				note := string(fields.SourceNotes[code])
				for _, want := range rule.FlagProvenance {
					if note == want {
						flags = append(flags, AnomalyFlag{
							FieldCode: code,
							Severity:  severity,
							Reason:    fmt.Sprintf("value sourced from %s", note),
						})
						break
					}
				}
			}

			if rule.MaxAbs != nil && value.Abs().GreaterThan(*rule.MaxAbs) {
				flags = append(flags, AnomalyFlag{
					FieldCode: code,
					Severity:  severity,
					Reason:    fmt.Sprintf("magnitude %s exceeds threshold %s", value.String(), rule.MaxAbs.String()),
				})
			}

			if rule.MaxChangePct != nil && baseline != nil {
				prev, hasPrev := baseline.Fields[code]
				if hasPrev && !prev.IsZero() {
					change := value.Sub(prev).Div(prev.Abs()).Mul(decimal.NewFromInt(100))
					if change.Abs().GreaterThan(*rule.MaxChangePct) {
						flags = append(flags, AnomalyFlag{
							FieldCode: code,
							Severity:  severity,
							Reason:    fmt.Sprintf("changed %s%% against prior period, threshold %s%%", change.Round(1).String(), rule.MaxChangePct.String()),
						})
					}
				}
			}
		}
	}

	return flags
}

func fieldOrder(kind Kind) []string {
	if kind == KindFAS {
		return fasFieldCodes
	}
	return basFieldCodes
}
