package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Broker struct {
		AppKey       string `yaml:"app_key"`
		AppSecret    string `yaml:"app_secret"`
		AccessToken  string `yaml:"access_token"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"broker"`
	RiskConfigPath string `yaml:"risk_config"`
	StopConfigPath string `yaml:"stop_config"`
	DataDir        string `yaml:"data_dir"`
	SQLitePath     string `yaml:"sqlite_path"`
	DryRun         bool   `yaml:"dry_run"`
	ScanIntervalS  int    `yaml:"scan_interval_sec"`
	Logging        struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// Load reads the YAML config and overlays broker credentials from the
// environment. A .env file is loaded first when present, so credentials
// never have to live in the YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("LONGPORT_APP_KEY"); v != "" {
		cfg.Broker.AppKey = v
	}
	if v := os.Getenv("LONGPORT_APP_SECRET"); v != "" {
		cfg.Broker.AppSecret = v
	}
	if v := os.Getenv("LONGPORT_ACCESS_TOKEN"); v != "" {
		cfg.Broker.AccessToken = v
	}

	if cfg.RiskConfigPath == "" {
		cfg.RiskConfigPath = "config/risk_config.json"
	}
	if cfg.StopConfigPath == "" {
		cfg.StopConfigPath = "config/smart_stop_config.json"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "data/engine.db"
	}
	if cfg.ScanIntervalS <= 0 {
		cfg.ScanIntervalS = 60
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	return &cfg, nil
}
