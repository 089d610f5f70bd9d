// Package config loads netmapd configuration from a file, the environment
// (NETMAP_ prefix) and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"xdao.co/netmap/authority"
	"xdao.co/netmap/compliance"
	"xdao.co/netmap/keys"
	"xdao.co/netmap/logging"
	"xdao.co/netmap/netmap"
	"xdao.co/netmap/registry"
	"xdao.co/netmap/schedule"
	"xdao.co/netmap/storage/storeconfig"
)

// EnvPrefix prefixes environment overrides: NETMAP_LOG_LEVEL sets log.level.
const EnvPrefix = "NETMAP"

type Config struct {
	Listen        string             `mapstructure:"listen"`
	BuildInterval time.Duration      `mapstructure:"build_interval"`
	Log           logging.Config     `mapstructure:"log"`
	Trust         TrustConfig        `mapstructure:"trust"`
	Authority     AuthorityConfig    `mapstructure:"authority"`
	Storage       storeconfig.Config `mapstructure:"storage"`
	Publish       PublishConfig      `mapstructure:"publish"`
	Parameters    ParametersConfig   `mapstructure:"parameters"`
	// Duplicates is "permissive" or "strict".
	Duplicates string `mapstructure:"duplicates"`
	CacheSize  int    `mapstructure:"cache_size"`
	Metrics    bool   `mapstructure:"metrics"`
}

// TrustConfig selects the roots submissions must chain to.
//
// In dev mode the well-known development root is trusted in addition to any
// configured files.
type TrustConfig struct {
	DevMode       bool     `mapstructure:"dev_mode"`
	RootCertFiles []string `mapstructure:"root_cert_files"`
}

// AuthorityConfig locates the network map signer.
//
// KeyFile and CertFile name a provisioned authority. Otherwise an authority is
// issued at startup under RootKeyFile/RootCertFile, or under the development
// root in dev mode.
type AuthorityConfig struct {
	Scheme       string        `mapstructure:"scheme"`
	HashAlg      string        `mapstructure:"hash_alg"`
	Name         string        `mapstructure:"name"`
	Validity     time.Duration `mapstructure:"validity"`
	KeyFile      string        `mapstructure:"key_file"`
	CertFile     string        `mapstructure:"cert_file"`
	RootKeyFile  string        `mapstructure:"root_key_file"`
	RootCertFile string        `mapstructure:"root_cert_file"`
}

// PublishConfig selects where the signed map and parameters are published.
type PublishConfig struct {
	// Backend is one of memory, localfs, sqlite or leveldb.
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	LevelDBDir string `mapstructure:"leveldb_dir"`
}

type NotaryConfig struct {
	Identity   string `mapstructure:"identity"`
	Validating bool   `mapstructure:"validating"`
}

// ParametersConfig holds the network parameters signed by every build. The
// modified time is always the service start time.
type ParametersConfig struct {
	MinimumPlatformVersion int32             `mapstructure:"minimum_platform_version"`
	MaxMessageSize         int32             `mapstructure:"max_message_size"`
	MaxTransactionSize     int32             `mapstructure:"max_transaction_size"`
	Epoch                  int32             `mapstructure:"epoch"`
	Notaries               []NotaryConfig    `mapstructure:"notaries"`
	Settings               map[string]string `mapstructure:"settings"`
}

// Default is a self-contained development setup: in-memory storage, the
// development root and a freshly issued authority.
func Default() Config {
	p := netmap.DefaultParameters(time.Time{})
	return Config{
		Listen:        "127.0.0.1:8080",
		BuildInterval: schedule.DefaultInterval,
		Log:           logging.DefaultConfig(),
		Trust:         TrustConfig{DevMode: true},
		Authority: AuthorityConfig{
			Scheme:   string(keys.Ed25519),
			HashAlg:  keys.DefaultHashAlg,
			Name:     authority.DefaultName,
			Validity: authority.DefaultValidity,
		},
		Storage: storeconfig.Config{
			Backends: []storeconfig.BackendConfig{{Name: "memory"}},
		},
		Publish: PublishConfig{Backend: "memory"},
		Parameters: ParametersConfig{
			MinimumPlatformVersion: p.MinimumPlatformVersion,
			MaxMessageSize:         p.MaxMessageSize,
			MaxTransactionSize:     p.MaxTransactionSize,
			Epoch:                  p.Epoch,
		},
		Duplicates: compliance.Permissive.String(),
		CacheSize:  registry.DefaultCacheSize,
		Metrics:    true,
	}
}

// scalar keys that may be overridden from the environment or flags.
var envKeys = []string{
	"listen", "build_interval", "duplicates", "cache_size", "metrics",
	"log.level", "log.encoding",
	"trust.dev_mode", "trust.root_cert_files",
	"authority.scheme", "authority.hash_alg", "authority.name", "authority.validity",
	"authority.key_file", "authority.cert_file", "authority.root_key_file", "authority.root_cert_file",
	"storage.write_policy",
	"publish.backend", "publish.dir", "publish.sqlite_path", "publish.leveldb_dir",
	"parameters.minimum_platform_version", "parameters.max_message_size",
	"parameters.max_transaction_size", "parameters.epoch",
}

// Load reads path (optional) and the environment, then applies flags that
// were set explicitly. Flag names use dashes for underscores and dots, so
// --log-level sets log.level.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return cfg, err
		}
	}
	if flags != nil {
		for _, k := range envKeys {
			if f := flags.Lookup(FlagName(k)); f != nil {
				if err := v.BindPFlag(k, f); err != nil {
					return cfg, err
				}
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return cfg, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// FlagName is the command line flag for a config key.
func FlagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.BuildInterval <= 0 {
		errs = append(errs, errors.New("build_interval must be positive"))
	}
	if _, err := keys.ParseScheme(c.Authority.Scheme); err != nil {
		errs = append(errs, fmt.Errorf("authority.scheme: %w", err))
	}
	if _, err := keys.Digest(c.Authority.HashAlg, nil); err != nil {
		errs = append(errs, fmt.Errorf("authority.hash_alg: %w", err))
	}
	if (c.Authority.KeyFile == "") != (c.Authority.CertFile == "") {
		errs = append(errs, errors.New("authority.key_file and authority.cert_file must be set together"))
	}
	if (c.Authority.RootKeyFile == "") != (c.Authority.RootCertFile == "") {
		errs = append(errs, errors.New("authority.root_key_file and authority.root_cert_file must be set together"))
	}
	if !c.Trust.DevMode {
		if len(c.Trust.RootCertFiles) == 0 {
			errs = append(errs, errors.New("trust.root_cert_files is required outside dev mode"))
		}
		if c.Authority.KeyFile == "" && c.Authority.RootKeyFile == "" {
			errs = append(errs, errors.New("an authority or root key is required outside dev mode"))
		}
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Publish.Backend {
	case "memory":
	case "localfs":
		if c.Publish.Dir == "" {
			errs = append(errs, errors.New("publish.dir is required for localfs"))
		}
	case "sqlite":
		if c.Publish.SQLitePath == "" {
			errs = append(errs, errors.New("publish.sqlite_path is required for sqlite"))
		}
	case "leveldb":
		if c.Publish.LevelDBDir == "" {
			errs = append(errs, errors.New("publish.leveldb_dir is required for leveldb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown publish.backend %q", c.Publish.Backend))
	}
	if _, err := compliance.Parse(c.Duplicates); err != nil {
		errs = append(errs, fmt.Errorf("duplicates: %w", err))
	}
	if c.CacheSize < 0 {
		errs = append(errs, errors.New("cache_size must not be negative"))
	}
	if err := c.Parameters.NetworkParameters(time.Unix(0, 0)).Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Policy returns the duplicate submission policy.
func (c Config) Policy() compliance.ComplianceMode {
	m, _ := compliance.Parse(c.Duplicates)
	return m
}

// NetworkParameters stamps the configured values with modified.
func (p ParametersConfig) NetworkParameters(modified time.Time) netmap.NetworkParameters {
	out := netmap.NetworkParameters{
		MinimumPlatformVersion: p.MinimumPlatformVersion,
		Notaries:               make([]netmap.NotaryInfo, 0, len(p.Notaries)),
		MaxMessageSize:         p.MaxMessageSize,
		MaxTransactionSize:     p.MaxTransactionSize,
		ModifiedTime:           modified.UnixMilli(),
		Epoch:                  p.Epoch,
		Settings:               map[string]string{},
	}
	for _, n := range p.Notaries {
		out.Notaries = append(out.Notaries, netmap.NotaryInfo{Identity: n.Identity, Validating: n.Validating})
	}
	for k, v := range p.Settings {
		out.Settings[k] = v
	}
	return out
}
