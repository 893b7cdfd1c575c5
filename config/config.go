package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config is read from the environment, optionally seeded by a .env file.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":3002" validate:"required"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`

	StorageType      string `envconfig:"STORAGE_TYPE" default:"memory" validate:"oneof=memory filesystem sqlite s3"`
	LocalStoragePath string `envconfig:"LOCAL_STORAGE_PATH" default:"./data"`
	DataSourceName   string `envconfig:"DATA_SOURCE_NAME" default:"codecollab.db"`
	S3BucketName     string `envconfig:"S3_BUCKET_NAME" validate:"required_if=StorageType s3"`

	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LegacyEvents   bool          `envconfig:"LEGACY_EVENTS" default:"true"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"2s" validate:"gt=0"`

	RunTimeout        time.Duration `envconfig:"RUN_TIMEOUT" default:"10s" validate:"gt=0"`
	CPPCompiler       string        `envconfig:"CPP_COMPILER" default:"g++"`
	CCompiler         string        `envconfig:"C_COMPILER" default:"gcc"`
	PythonInterpreter string        `envconfig:"PYTHON_INTERPRETER" default:"python3"`
	RunTempDir        string        `envconfig:"RUN_TEMP_DIR"`
}

// Load reads .env files when present and decodes the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		logrus.Debug("No .env file found")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
