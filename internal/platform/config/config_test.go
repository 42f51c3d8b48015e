package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{
		"SERVICE_NAME", "HTTP_PORT", "KAFKA_BROKERS", "LEDGER_POLICY_FILE",
		"LEDGER_OPERATORS", "SNAPSHOT_INTERVAL", "WORKER_POLL_INTERVAL", "ENABLE_PAYOUT_CONSUMER",
	} {
		t.Setenv(name, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "agora-ledger" || cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SnapshotInterval != time.Minute || cfg.WorkerPollInterval != 2*time.Second {
		t.Fatalf("unexpected intervals: %s %s", cfg.SnapshotInterval, cfg.WorkerPollInterval)
	}
	if !cfg.EnablePayoutConsumer || !cfg.EnableSnapshots || !cfg.EnableExpirySweeper {
		t.Fatal("expected workers enabled by default")
	}
	if cfg.Policy.GovernanceAssetID != "AGORA" || cfg.Policy.WeightUnit.Cmp(entities.Tokens(1000)) != 0 {
		t.Fatalf("unexpected default policy: %+v", cfg.Policy)
	}
}

func TestLoadReadsPolicyFileAndOperators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := []byte(`
min_duration: 30m
archive_delay: 48h
weight_unit_tokens: 10
creation_fee: "5000"
operators: [council]
time_weight:
  base_bps: 10000
  bonus_per_day_bps: 50
  cap_bps: 15000
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv("LEDGER_POLICY_FILE", path)
	t.Setenv("LEDGER_OPERATORS", "admin, treasurer")
	t.Setenv("ENABLE_PAYOUT_CONSUMER", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	policy := cfg.Policy
	if policy.MinDuration != 30*time.Minute || policy.ArchiveDelay != 48*time.Hour {
		t.Fatalf("durations not applied: %+v", policy)
	}
	if policy.MaxDuration != 30*24*time.Hour {
		t.Fatalf("unset max_duration should keep default, got %s", policy.MaxDuration)
	}
	if policy.WeightUnit.Cmp(entities.Tokens(10)) != 0 || policy.CreationFee.String() != "5000" {
		t.Fatalf("amounts not applied: unit=%s fee=%s", policy.WeightUnit, policy.CreationFee)
	}
	want := entities.TimeWeightPolicy{BaseBps: 10000, BonusPerDayBps: 50, CapBps: 15000}
	if diff := cmp.Diff(want, policy.TimeWeight); diff != "" {
		t.Fatalf("time weight mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"admin", "treasurer"}, policy.Operators); diff != "" {
		t.Fatalf("env operators should win (-want +got):\n%s", diff)
	}
	if cfg.EnablePayoutConsumer {
		t.Fatal("expected payout consumer disabled")
	}
}

func TestParsePolicyRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative fee":       `creation_fee: "-1"`,
		"zero weight unit":   `weight_unit_tokens: 0`,
		"inverted durations": "min_duration: 48h\nmax_duration: 24h",
		"bad yaml":           `min_duration: [`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(body), entities.DefaultPolicy()); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestInvalidIntervalFailsLoad(t *testing.T) {
	t.Setenv("LEDGER_POLICY_FILE", "")
	t.Setenv("SNAPSHOT_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid SNAPSHOT_INTERVAL to fail")
	}
}
