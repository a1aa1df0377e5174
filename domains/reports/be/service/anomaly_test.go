package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func basFields(values map[string]string, notes map[string]SourceNote) ComplianceFields {
	out := newFields(KindBAS, testPeriod())
	for _, code := range basFieldCodes {
		note, ok := notes[code]
		if !ok {
			note = SourceTaxSummary
		}
		amount := decimal.Zero
		if raw, ok := values[code]; ok {
			amount = decimal.RequireFromString(raw)
		}
		out.set(code, amount, note)
	}
	return out
}

func TestParseThresholdsValid(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"rules": [
			{"field": "G1", "maxAbs": "5000000", "severity": "warning"},
			{"field": "*", "flagProvenance": ["estimated", "unavailable"], "severity": "info"}
		]
	}`)

	thresholds, err := ParseThresholds(raw)
	require.NoError(t, err)
	require.Len(t, thresholds.Rules, 2)
	require.Equal(t, "G1", thresholds.Rules[0].Field)
	require.True(t, thresholds.Rules[0].MaxAbs.Equal(decimal.NewFromInt(5_000_000)))
}

func TestParseThresholdsRejectsUnknownSeverity(t *testing.T) {
	t.Parallel()

	_, err := ParseThresholds([]byte(`{"rules": [{"field": "G1", "severity": "fatal"}]}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema validation")
}

func TestParseThresholdsRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := ParseThresholds([]byte(`{"rules": [{"field": "G1", "maxAbsolute": 10}]}`))
	require.Error(t, err)
}

func TestFlagProvenance(t *testing.T) {
	t.Parallel()

	fields := basFields(nil, map[string]SourceNote{
		"G1": SourceEstimated,
		"W2": SourceUnavailable,
	})
	thresholds := Thresholds{Rules: []ThresholdRule{
		{Field: "*", FlagProvenance: []string{string(SourceEstimated), string(SourceUnavailable)}, Severity: SeverityInfo},
	}}

	flags := Flag(fields, nil, thresholds)
	require.Len(t, flags, 2)
	codes := []string{flags[0].FieldCode, flags[1].FieldCode}
	require.ElementsMatch(t, []string{"G1", "W2"}, codes)
	require.Equal(t, SeverityInfo, flags[0].Severity)
}

func TestFlagMagnitude(t *testing.T) {
	t.Parallel()

	fields := basFields(map[string]string{"G1": "12000000"}, nil)
	max := decimal.NewFromInt(10_000_000)
	thresholds := Thresholds{Rules: []ThresholdRule{
		{Field: "G1", MaxAbs: &max, Severity: SeverityWarning},
	}}

	flags := Flag(fields, nil, thresholds)
	require.Len(t, flags, 1)
	require.Equal(t, "G1", flags[0].FieldCode)
	require.Equal(t, SeverityWarning, flags[0].Severity)
	require.Contains(t, flags[0].Reason, "exceeds threshold")
}

func TestFlagPercentageChangeAgainstBaseline(t *testing.T) {
	t.Parallel()

	fields := basFields(map[string]string{"G1": "300000"}, nil)
	baseline := basFields(map[string]string{"G1": "100000"}, nil)
	maxPct := decimal.NewFromInt(100)
	thresholds := Thresholds{Rules: []ThresholdRule{
		{Field: "G1", MaxChangePct: &maxPct, Severity: SeverityCritical},
	}}

	flags := Flag(fields, &baseline, thresholds)
	require.Len(t, flags, 1)
	require.Equal(t, SeverityCritical, flags[0].Severity)
	require.Contains(t, flags[0].Reason, "200%")
}

func TestFlagPercentageRuleSkippedWithoutBaseline(t *testing.T) {
	t.Parallel()

	fields := basFields(map[string]string{"G1": "300000"}, nil)
	maxPct := decimal.NewFromInt(100)
	thresholds := Thresholds{Rules: []ThresholdRule{
		{Field: "G1", MaxChangePct: &maxPct},
	}}

	require.Empty(t, Flag(fields, nil, thresholds))
}

func TestFlagNeverMutatesFields(t *testing.T) {
	t.Parallel()

	fields := basFields(map[string]string{"G1": "50"}, map[string]SourceNote{"G1": SourceEstimated})
	_ = Flag(fields, nil, DefaultThresholds())

	require.True(t, fields.Fields["G1"].Equal(decimal.NewFromInt(50)))
	require.Equal(t, SourceEstimated, fields.SourceNotes["G1"])
}

func TestDefaultThresholdsFlagDegradedReport(t *testing.T) {
	t.Parallel()

	fields := basFields(nil, map[string]SourceNote{
		"G1": SourceUnavailable, "G2": SourceUnavailable, "1A": SourceUnavailable,
		"1B": SourceUnavailable, "W1": SourceUnavailable, "W2": SourceUnavailable,
	})

	flags := Flag(fields, nil, DefaultThresholds())
	require.Len(t, flags, len(basFieldCodes))
	for _, flag := range flags {
		require.Equal(t, SeverityInfo, flag.Severity)
	}
}
