package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/Wieedze/intuition-fee-proxy/internal/fees"
	"github.com/Wieedze/intuition-fee-proxy/internal/ledger"
	"github.com/Wieedze/intuition-fee-proxy/internal/logging"
)

// Config is the full service configuration. The fee and admin sections are
// starting values only: once the service is running they are mutated through
// the admin API, not the file.
type Config struct {
	Logging logging.Config `yaml:"logging"`
	Server  ServerConfig   `yaml:"server"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Ledger  ledger.Config  `yaml:"ledger"`
	Vault   VaultConfig    `yaml:"vault"`
	Fees    FeesConfig     `yaml:"fees"`

	// Admins is the initial admin registry; must be non-empty.
	Admins []string `yaml:"admins"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	JWTSecret    string        `yaml:"jwt_secret"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MetricsConfig holds the Prometheus exporter settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

// VaultConfig parameterizes the in-process vault.
type VaultConfig struct {
	Account    string `yaml:"account"`
	AtomCost   Amount `yaml:"atom_cost"`
	TripleCost Amount `yaml:"triple_cost"`
}

// FeesConfig holds the initial fee schedule.
type FeesConfig struct {
	FixedFee      Amount `yaml:"fixed_fee"`
	PercentageFee uint64 `yaml:"percentage_fee"`
	Recipient     string `yaml:"recipient"`
	Escrow        string `yaml:"escrow"`
}

// Amount is a big integer configuration value, accepted as a decimal or
// 0x-prefixed string (or a bare YAML integer).
type Amount struct {
	v *big.Int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.v = v
	return nil
}

// Int returns the amount, never nil.
func (a Amount) Int() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "feeproxy"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "feeproxy.db"
	}
}

// Validate enforces the deployment preconditions: non-zero vault and
// recipient addresses, a percentage fee within the basis-point range and a
// non-empty admin list.
func (c *Config) Validate() error {
	if err := validateAddress("vault.account", c.Vault.Account); err != nil {
		return err
	}
	if err := validateAddress("fees.recipient", c.Fees.Recipient); err != nil {
		return err
	}
	if c.Fees.Escrow != "" && !common.IsHexAddress(c.Fees.Escrow) {
		return fmt.Errorf("fees.escrow: invalid address %q", c.Fees.Escrow)
	}
	if c.Fees.PercentageFee > fees.FeeDenominator {
		return fmt.Errorf("fees.percentage_fee: %d exceeds %d basis points",
			c.Fees.PercentageFee, fees.FeeDenominator)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("admins: at least one initial admin is required")
	}
	for _, a := range c.Admins {
		if !common.IsHexAddress(a) || common.HexToAddress(a) == (common.Address{}) {
			return fmt.Errorf("admins: invalid address %q", a)
		}
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	return nil
}

func validateAddress(field, s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("%s: invalid address %q", field, s)
	}
	if common.HexToAddress(s) == (common.Address{}) {
		return fmt.Errorf("%s: zero address", field)
	}
	return nil
}

// AdminAddresses returns the parsed initial admin list.
func (c *Config) AdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Admins))
	for _, a := range c.Admins {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

// VaultAccount returns the parsed vault address.
func (c *Config) VaultAccount() common.Address {
	return common.HexToAddress(c.Vault.Account)
}

// FeeRecipient returns the parsed fee recipient address.
func (c *Config) FeeRecipient() common.Address {
	return common.HexToAddress(c.Fees.Recipient)
}

// EscrowAccount returns the parsed escrow address, zero when unset.
func (c *Config) EscrowAccount() common.Address {
	if c.Fees.Escrow == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Fees.Escrow)
}
