package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"agora/contexts/governance/polling-ledger/domain/entities"

	"gopkg.in/yaml.v3"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	SQLitePath   string
	KafkaBrokers []string

	Policy             entities.Policy
	SnapshotInterval   time.Duration
	WorkerPollInterval time.Duration

	EnableExpirySweeper  bool
	EnableSnapshots      bool
	EnablePayoutConsumer bool
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "agora-ledger"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	policy := entities.DefaultPolicy()
	if path := strings.TrimSpace(os.Getenv("LEDGER_POLICY_FILE")); path != "" {
		loaded, err := LoadPolicyFile(path, policy)
		if err != nil {
			return Config{}, err
		}
		policy = loaded
	}
	if operators := splitList(os.Getenv("LEDGER_OPERATORS")); len(operators) > 0 {
		policy.Operators = operators
	}

	snapshotInterval, err := envDuration("SNAPSHOT_INTERVAL", time.Minute)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := envDuration("WORKER_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		KafkaBrokers: brokers,

		Policy:             policy,
		SnapshotInterval:   snapshotInterval,
		WorkerPollInterval: pollInterval,

		EnableExpirySweeper:  envBool("ENABLE_EXPIRY_SWEEPER", true),
		EnableSnapshots:      envBool("ENABLE_SNAPSHOTS", true),
		EnablePayoutConsumer: envBool("ENABLE_PAYOUT_CONSUMER", true),
	}, nil
}

// policyFile mirrors entities.Policy for YAML. Absent keys keep the base value.
type policyFile struct {
	MinDuration       *time.Duration             `yaml:"min_duration"`
	MaxDuration       *time.Duration             `yaml:"max_duration"`
	ArchiveDelay      *time.Duration             `yaml:"archive_delay"`
	DefaultDuration   *time.Duration             `yaml:"default_duration"`
	WeightUnitTokens  *int64                     `yaml:"weight_unit_tokens"`
	TimeWeight        *entities.TimeWeightPolicy `yaml:"time_weight"`
	Reputation        *entities.ReputationPolicy `yaml:"reputation"`
	BaseReward        string                     `yaml:"base_reward"`
	PerVoteBonus      string                     `yaml:"per_vote_bonus"`
	CreationFee       string                     `yaml:"creation_fee"`
	Operators         []string                   `yaml:"operators"`
	MaxOptions        *int                       `yaml:"max_options"`
	MaxTags           *int                       `yaml:"max_tags"`
	MaxBatchSize      *int                       `yaml:"max_batch_size"`
	GovernanceAssetID string                     `yaml:"governance_asset_id"`
}

// LoadPolicyFile overlays the YAML file at path onto base. Token amounts are
// decimal strings of base units.
func LoadPolicyFile(path string, base entities.Policy) (entities.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return entities.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw, base)
}

func ParsePolicy(raw []byte, base entities.Policy) (entities.Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return entities.Policy{}, fmt.Errorf("decode policy file: %w", err)
	}

	policy := base
	if file.MinDuration != nil {
		policy.MinDuration = *file.MinDuration
	}
	if file.MaxDuration != nil {
		policy.MaxDuration = *file.MaxDuration
	}
	if file.ArchiveDelay != nil {
		policy.ArchiveDelay = *file.ArchiveDelay
	}
	if file.DefaultDuration != nil {
		policy.DefaultDuration = *file.DefaultDuration
	}
	if file.WeightUnitTokens != nil {
		if *file.WeightUnitTokens <= 0 {
			return entities.Policy{}, fmt.Errorf("policy weight_unit_tokens must be positive")
		}
		policy.WeightUnit = entities.Tokens(*file.WeightUnitTokens)
	}
	if file.TimeWeight != nil {
		policy.TimeWeight = *file.TimeWeight
	}
	if file.Reputation != nil {
		policy.Reputation = *file.Reputation
	}
	amounts := []struct {
		name   string
		raw    string
		target **big.Int
	}{
		{"base_reward", file.BaseReward, &policy.Rewards.BaseReward},
		{"per_vote_bonus", file.PerVoteBonus, &policy.Rewards.PerVoteBonus},
		{"creation_fee", file.CreationFee, &policy.CreationFee},
	}
	for _, amount := range amounts {
		if strings.TrimSpace(amount.raw) == "" {
			continue
		}
		value, ok := new(big.Int).SetString(strings.TrimSpace(amount.raw), 10)
		if !ok || value.Sign() < 0 {
			return entities.Policy{}, fmt.Errorf("policy %s must be a non-negative integer, got %q", amount.name, amount.raw)
		}
		*amount.target = value
	}
	if len(file.Operators) > 0 {
		policy.Operators = splitList(strings.Join(file.Operators, ","))
	}
	if file.MaxOptions != nil {
		policy.MaxOptions = *file.MaxOptions
	}
	if file.MaxTags != nil {
		policy.MaxTags = *file.MaxTags
	}
	if file.MaxBatchSize != nil {
		policy.MaxBatchSize = *file.MaxBatchSize
	}
	if id := strings.TrimSpace(file.GovernanceAssetID); id != "" {
		policy.GovernanceAssetID = id
	}

	if policy.MinDuration <= 0 || policy.MaxDuration < policy.MinDuration {
		return entities.Policy{}, fmt.Errorf("policy durations must satisfy 0 < min_duration <= max_duration")
	}
	if policy.DefaultDuration < policy.MinDuration || policy.DefaultDuration > policy.MaxDuration {
		return entities.Policy{}, fmt.Errorf("policy default_duration must lie within [min_duration, max_duration]")
	}
	return policy, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", name, raw)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, value := range strings.Split(raw, ",") {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
