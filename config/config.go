package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Log       LogConfig       `mapstructure:"log"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Token     TokenConfig     `mapstructure:"token"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Mode          string `mapstructure:"mode"` // debug, release, test
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"` // per-transaction lock_timeout
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for webhook secrets at rest
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// ChainConfig describes the network invoices settle on.
type ChainConfig struct {
	ChainID             int64         `mapstructure:"chain_id"`
	ChainName           string        `mapstructure:"chain_name"`
	RPCURL              string        `mapstructure:"rpc_url"`
	ExplorerTxURL       string        `mapstructure:"explorer_tx_url"`   // prefix, tx hash appended
	ExplorerAddrURL     string        `mapstructure:"explorer_addr_url"` // prefix, address appended
	Confirmations       uint64        `mapstructure:"confirmations"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	VerifyTimeout       time.Duration `mapstructure:"verify_timeout"`
}

// TokenConfig is the ERC-20 invoices are denominated in.
type TokenConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals int    `mapstructure:"decimals"`
}

type ContractsConfig struct {
	Engine     string `mapstructure:"engine"`     // collateralized position engine
	Collateral string `mapstructure:"collateral"` // wrapped native collateral (WETH)
	Stable     string `mapstructure:"stable"`     // stablecoin minted by the engine
	NFT        string `mapstructure:"nft"`
}

// WalletConfig is only read by walletctl.
type WalletConfig struct {
	PrivateKey string            `mapstructure:"private_key"`
	Endpoints  map[string]string `mapstructure:"endpoints"` // chain id -> rpc url, enables switching
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: W3O_.
// Nested keys use underscore: W3O_DATABASE_HOST, W3O_CHAIN_RPC_URL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "web3_orchestrator")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "web3-orchestrator")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("chain.chain_id", 11155111)
	v.SetDefault("chain.chain_name", "sepolia")
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.explorer_tx_url", "https://sepolia.etherscan.io/tx/")
	v.SetDefault("chain.explorer_addr_url", "https://sepolia.etherscan.io/address/")
	v.SetDefault("chain.confirmations", 1)
	v.SetDefault("chain.receipt_timeout", "5m")
	v.SetDefault("chain.receipt_poll_interval", "2s")
	v.SetDefault("chain.verify_timeout", "60s")
	v.SetDefault("token.address", "")
	v.SetDefault("token.symbol", "USDT")
	v.SetDefault("token.decimals", 6)
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "30s")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: W3O_CHAIN_RPC_URL -> chain.rpc_url
	v.SetEnvPrefix("W3O")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// ValidateAPI reports every setting the invoice server cannot start without.
// walletctl loads the same file but needs none of them.
func (c *Config) ValidateAPI() error {
	var errs []error
	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("chain.rpc_url is required"))
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("chain.chain_id must be positive, got %d", c.Chain.ChainID))
	}
	if !common.IsHexAddress(c.Token.Address) {
		errs = append(errs, fmt.Errorf("token.address %q is not a hex address", c.Token.Address))
	}
	if c.Token.Decimals < 0 || c.Token.Decimals > 36 {
		errs = append(errs, fmt.Errorf("token.decimals %d out of range", c.Token.Decimals))
	}
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("jwt.secret must be at least 32 bytes"))
	}
	if key, err := hex.DecodeString(c.AES.Key); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("aes.key must be 64 hex characters"))
	}
	return errors.Join(errs...)
}
