package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for drop server configuration
const (
	EnvDropAuthorityAddress = "DROP_AUTHORITY_ADDRESS"
	EnvDropPort             = "DROP_PORT"
	EnvDropBackend          = "DROP_BACKEND"
	EnvDropBadgerDir        = "DROP_BADGER_DIR"
	EnvDropRedisAddr        = "DROP_REDIS_ADDR"
	EnvDropRedisPassword    = "DROP_REDIS_PASSWORD"
	EnvDropCampaignFile     = "DROP_CAMPAIGN_FILE"
	EnvDropClaimRateLimit   = "DROP_CLAIM_RATE_LIMIT"
	EnvDropVerbose          = "DROP_VERBOSE"
)

type BackendType string

func (b BackendType) String() string {
	return string(b)
}

const (
	BackendMemory BackendType = "memory"
	BackendBadger BackendType = "badger"
	BackendRedis  BackendType = "redis"
)

// SupportedBackends lists the persistence backends the server can run on.
var SupportedBackends = []BackendType{BackendMemory, BackendBadger, BackendRedis}

func ParseBackendType(s string) (BackendType, error) {
	switch BackendType(strings.ToLower(s)) {
	case BackendMemory:
		return BackendMemory, nil
	case BackendBadger:
		return BackendBadger, nil
	case BackendRedis:
		return BackendRedis, nil
	default:
		return "", fmt.Errorf("unsupported backend type: %s. Supported: %s", s, SupportedBackendsString())
	}
}

// SupportedBackendsString returns the backend names for CLI help text.
func SupportedBackendsString() string {
	names := make([]string, 0, len(SupportedBackends))
	for _, b := range SupportedBackends {
		names = append(names, b.String())
	}
	return strings.Join(names, ", ")
}

// RedisConfig holds connection settings for the Redis persistence backend.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

func (rc *RedisConfig) Validate() error {
	var allErrors field.ErrorList
	if rc.Addr == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("addr"), "addr is required"))
	}
	if rc.DB < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("db"), rc.DB, "db must be non-negative"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// DropServerConfig represents the complete configuration for a drop server
type DropServerConfig struct {
	// Campaign authority
	AuthorityAddress string `json:"authority_address"` // Ethereum address allowed to fund
	Port             int    `json:"port"`

	// Campaign manifest produced by the tree builder
	CampaignFile string `json:"campaign_file"`

	// Persistence backend
	Backend   BackendType  `json:"backend"`
	BadgerDir string       `json:"badger_dir,omitempty"`
	Redis     *RedisConfig `json:"redis,omitempty"`

	// Claim endpoint rate limit, requests per second. Zero disables limiting.
	ClaimRateLimit float64 `json:"claim_rate_limit"`

	// Operational settings
	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`
}

// Validate validates the drop server configuration
func (c *DropServerConfig) Validate() error {
	if c.AuthorityAddress == "" {
		return fmt.Errorf("authority address cannot be empty")
	}
	if !common.IsHexAddress(c.AuthorityAddress) {
		return fmt.Errorf("invalid authority address format: %s", c.AuthorityAddress)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1-65535, got %d", c.Port)
	}

	if c.CampaignFile == "" {
		return fmt.Errorf("campaign file cannot be empty")
	}

	backend, err := ParseBackendType(c.Backend.String())
	if err != nil {
		return err
	}
	c.Backend = backend

	switch c.Backend {
	case BackendBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("badger directory is required for the badger backend")
		}
	case BackendRedis:
		if c.Redis == nil {
			return fmt.Errorf("redis configuration is required for the redis backend")
		}
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis configuration: %w", err)
		}
	}

	if c.ClaimRateLimit < 0 {
		return fmt.Errorf("claim rate limit must be non-negative, got %f", c.ClaimRateLimit)
	}

	return nil
}

// Authority returns the parsed authority address. Call after Validate.
func (c *DropServerConfig) Authority() common.Address {
	return common.HexToAddress(c.AuthorityAddress)
}
