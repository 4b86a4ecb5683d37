package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		Build        string
		RollbarToken string
		WorkDir      string

		Database DatabaseConfig
		Server   ServerConfig
		Report   ReportConfig
	}

	DatabaseConfig struct {
		Engine string `validate:"oneof=postgres pgx"`
		// URL, when set, replaces Host, Port and Name (e.g. postgres://db.example.com:5432/postgres).
		// Its user info, if any, replaces User and Password.
		URL  string
		Host string
		Port int
		Name string

		// anonymous (read-only) credential
		User     string
		Password string

		// service-role credential; bypasses row-level security
		AdminUser     string
		AdminPassword string

		DisableTLS bool
		Timeout    time.Duration
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		RowLimit        int
	}

	ReportConfig struct {
		Format      string `validate:"oneof=text json yaml"`
		SampleLimit int    `validate:"gte=1"`
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HasAdmin reports whether a service-role credential is configured.
func (c DatabaseConfig) HasAdmin() bool {
	return c.AdminUser != ""
}

// NewConfig loads the process-wide configuration once; it is passed explicitly from there on.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.user", "anon")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.timeout", 30*time.Second)
	v.SetDefault("server.host", ":8080")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.rowLimit", 20)
	v.SetDefault("report.format", "text")
	v.SetDefault("report.sampleLimit", 5)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		Build:        v.GetString("build"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			URL:           v.GetString("database.url"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Timeout:       v.GetDuration("database.timeout"),
		},
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			RowLimit:        v.GetInt("server.rowLimit"),
		},
		Report: ReportConfig{
			Format:      strings.ToLower(v.GetString("report.format")),
			SampleLimit: v.GetInt("report.sampleLimit"),
		},
	}
}

// Validate checks the loaded values against their `validate` tags.
func (c *Config) Validate() error {
	if err := Validate.Struct(c.Database); err != nil {
		return NewValidationError(err, fieldErrors(err)...)
	}
	if err := Validate.Struct(c.Report); err != nil {
		return NewValidationError(err, fieldErrors(err)...)
	}
	return nil
}
