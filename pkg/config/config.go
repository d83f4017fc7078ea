package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/ethpandaops/gherkinreport/pkg/fsutil"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment variable overrides, e.g.
	// GHERKINREPORT_PARSER_IGNORE_BAD_STEPS.
	EnvPrefix = "GHERKINREPORT"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for recorded runs.
	DefaultResultsDir = "./results"

	// DefaultStorageDriver is the default tree storage backend.
	DefaultStorageDriver = "local"
)

// Config is the root configuration for gherkinreport.
type Config struct {
	Global  GlobalConfig  `yaml:"global" mapstructure:"global"`
	Parser  ParserConfig  `yaml:"parser" mapstructure:"parser"`
	Results ResultsConfig `yaml:"results" mapstructure:"results"`
	API     *APIConfig    `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// ParserConfig controls how report files are turned into trees.
type ParserConfig struct {
	IgnoreBadSteps bool   `yaml:"ignore_bad_steps" mapstructure:"ignore_bad_steps"`
	FailOnEmpty    bool   `yaml:"fail_on_empty" mapstructure:"fail_on_empty"`
	StagingDir     string `yaml:"staging_dir,omitempty" mapstructure:"staging_dir"`
	Concurrency    int    `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// ResultsConfig describes where recorded runs live.
type ResultsConfig struct {
	Dir     string          `yaml:"dir" mapstructure:"dir"`
	Storage StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Upload  *UploadConfig   `yaml:"upload,omitempty" mapstructure:"upload"`
	Index   *DatabaseConfig `yaml:"index,omitempty" mapstructure:"index"`
	// Owner is an optional "UID:GID" applied to recorded run directories.
	Owner string `yaml:"owner,omitempty" mapstructure:"owner"`
}

// StorageConfig selects the durable tree storage backend.
type StorageConfig struct {
	Driver string    `yaml:"driver" mapstructure:"driver"`
	S3     *S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3Config contains S3-compatible storage connection settings.
type S3Config struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// UploadConfig contains settings for pushing run directories elsewhere.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig configures the S3 run uploader.
type S3UploadConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	S3Config     `yaml:",inline" mapstructure:",squash"`
	StorageClass string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL          string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// Load reads the given YAML files in order, later files overriding
// earlier ones, then applies environment overrides and defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("parser.fail_on_empty", true)

	for i, path := range paths {
		f, err := os.Open(path) //nolint:gosec // path given on the command line
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(f)
		} else {
			err = v.MergeConfig(f)
		}

		_ = f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	bindEnvs(v, reflect.TypeOf(Config{}), "")

	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// bindEnvs registers every leaf key of t with viper so environment
// variables apply even when the key is absent from the files.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if opts == "squash" {
			bindEnvs(v, field.Type, prefix)

			continue
		}

		if name == "" || name == "-" {
			continue
		}

		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		ft := field.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct {
			bindEnvs(v, ft, key)

			continue
		}

		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Results.Dir == "" {
		c.Results.Dir = DefaultResultsDir
	}

	if c.Results.Storage.Driver == "" {
		c.Results.Storage.Driver = DefaultStorageDriver
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Results.Storage.Driver {
	case "local":
	case "s3":
		if c.Results.Storage.S3 == nil || c.Results.Storage.S3.Bucket == "" {
			return fmt.Errorf("results.storage.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown results storage driver %q", c.Results.Storage.Driver)
	}

	if c.Parser.Concurrency < 0 {
		return fmt.Errorf("parser.concurrency must not be negative")
	}

	if c.Results.Upload != nil && c.Results.Upload.S3 != nil &&
		c.Results.Upload.S3.Enabled && c.Results.Upload.S3.Bucket == "" {
		return fmt.Errorf("results.upload.s3.bucket is required when upload is enabled")
	}

	if _, err := fsutil.ParseOwner(c.Results.Owner); err != nil {
		return fmt.Errorf("results.owner: %w", err)
	}

	if c.Results.Index != nil {
		if err := c.Results.Index.Validate(); err != nil {
			return fmt.Errorf("results.index: %w", err)
		}
	}

	if c.Results.Dir != "" {
		dir := filepath.Dir(c.Results.Dir)
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("results directory parent %q does not exist", dir)
			}
		}
	}

	return nil
}

// ValidateAPI checks the API section.
func (c *Config) ValidateAPI() error {
	if c.API == nil {
		return fmt.Errorf("api section is required")
	}

	return c.API.Validate()
}
