package stage

import (
	"encoding/json"

	"pixguard/internal/fingerprint"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
)

// Stage payloads travel between lanes as JSON columns on the run row. Parse
// helpers tolerate empty payloads (zero value, nil error) so handlers can
// branch on presence, and return services.ErrValidation on corrupt payloads
// so the failure parks the run for review instead of retrying forever.

// ParseFingerprint decodes the fingerprint payload stashed by the
// fingerprinting stage.
func ParseFingerprint(raw string) (fingerprint.Fingerprint, error) {
	if raw == "" {
		return fingerprint.Fingerprint{}, nil
	}
	var fp fingerprint.Fingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return fingerprint.Fingerprint{}, services.Wrap(
			services.ErrValidation, "stage", "parse fingerprint",
			"Fingerprint payload missing or invalid; rerun fingerprinting", err)
	}
	return fp, nil
}

// EncodeFingerprint serializes a fingerprint for the run row.
func EncodeFingerprint(fp *fingerprint.Fingerprint) (string, error) {
	if fp == nil {
		return "", nil
	}
	data, err := json.Marshal(fp)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "stage", "encode fingerprint", "", err)
	}
	return string(data), nil
}

// ParseCandidates decodes the candidate payload stashed by the fetching stage.
func ParseCandidates(raw string) ([]providers.Candidate, error) {
	if raw == "" {
		return nil, nil
	}
	var candidates []providers.Candidate
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse candidates",
			"Candidate payload missing or invalid; rerun fetching", err)
	}
	return candidates, nil
}

// EncodeCandidates serializes fetched candidates for the run row.
func EncodeCandidates(candidates []providers.Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "stage", "encode candidates", "", err)
	}
	return string(data), nil
}

// ParseScored decodes the scored payload stashed by the scoring stage.
func ParseScored(raw string) ([]scoring.Scored, error) {
	if raw == "" {
		return nil, nil
	}
	var scored []scoring.Scored
	if err := json.Unmarshal([]byte(raw), &scored); err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse scored candidates",
			"Scored payload missing or invalid; rerun scoring", err)
	}
	return scored, nil
}

// EncodeScored serializes scored candidates for the run row.
func EncodeScored(scored []scoring.Scored) (string, error) {
	if len(scored) == 0 {
		return "", nil
	}
	data, err := json.Marshal(scored)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "stage", "encode scored candidates", "", err)
	}
	return string(data), nil
}

// ParseFailures decodes provider failures recorded by the fetching stage.
// Corrupt payloads degrade to nil: failures are advisory context for
// operators, never an input to later stages.
func ParseFailures(raw string) []providers.Failure {
	if raw == "" {
		return nil
	}
	var failures []providers.Failure
	if err := json.Unmarshal([]byte(raw), &failures); err != nil {
		return nil
	}
	return failures
}

// EncodeFailures serializes provider failures for the run row.
func EncodeFailures(failures []providers.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return ""
	}
	return string(data)
}
