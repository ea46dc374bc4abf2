// Package config loads server configuration from a YAML file and the
// environment. A missing config file is not fatal: defaults plus
// environment variables are enough for local runs.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env             string        `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	TCPHost         string        `yaml:"tcp_host" env:"TCP_HOST" env-default:"0.0.0.0"`
	TCPPort         int           `yaml:"tcp_port" env:"TCP_PORT" env-default:"5432"`
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT" env-default:"8080"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	UnitPriceCents  int64         `yaml:"unit_price_cents" env:"UNIT_PRICE_CENTS" env-default:"5000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	Store           Store         `yaml:"store"`
}

type Store struct {
	Backend  string   `yaml:"backend" env:"STORE_BACKEND" env-default:"sqlite" env-choices:"sqlite,postgres,memory"`
	SeedDemo bool     `yaml:"seed_demo" env:"STORE_SEED_DEMO" env-default:"true"`
	SQLite   SQLite   `yaml:"sqlite"`
	Postgres Postgres `yaml:"postgres"`
}

type SQLite struct {
	Path     string `yaml:"path" env:"SQLITE_PATH" env-default:"cardstore.db"`
	PoolSize int    `yaml:"pool_size" env:"SQLITE_POOL_SIZE" env-default:"4"`
}

type Postgres struct {
	Host string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"PG_PORT" env-default:"5433"`
	User string `yaml:"user" env:"PG_USER" env-default:"cardstore"`
	Pass string `yaml:"pass" env:"PG_PASS" env-default:"cardstore"`
	Db   string `yaml:"db" env:"PG_DB" env-default:"cardstore"`
}

// URL renders the connection string lib/pq expects.
func (p Postgres) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Pass, p.Host, p.Port, p.Db)
}

// TCPAddr returns the host:port the line protocol listens on.
func (c *Config) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCPHost, c.TCPPort)
}

// HTTPAddr returns the host:port for the HTTP surface.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCPHost, c.HTTPPort)
}

// MustLoad reads configuration and panics on failure. When no config
// file is named (via -config or CONFIG_PATH), only environment
// variables and defaults apply.
func MustLoad() *Config {
	path := fetchConfigPath()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			panic("failed to read config from environment: " + err.Error())
		}
		return &cfg
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}
	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
