package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (default) | TEST | QA | PROD
		Debug            bool
		TestMode         bool
		Build            string
		WorkDir          string
		SecretKey        []byte
		AdminSecretKey   string
		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string
		BackupDir        string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		PayPal   PayPalConfig
		Cashbook CashbookConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	RedisConfig struct {
		Address      string
		ThemeChannel string
	}

	PayPalConfig struct {
		ClientID               string
		ClientSecret           string
		APIBase                string
		PollInterval           time.Duration
		ReportingLookback      time.Duration
		BackgroundPollInterval time.Duration
		BackgroundPollEnabled  bool
		PendingExpiration      time.Duration
	}

	CashbookConfig struct {
		AutoCompany    string
		SummaryCompany string
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewConfig loads the app configuration from config/.env.<env> (if present)
// and the environment, with sane DEV defaults.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Kantine")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "h2(h!x)#*c2(#yg4h^$cegm2emypoq5-wer)enb$+57=dz&uox")
	conf.SetDefault("adminSecretKey", "kantine-admin-dev")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("backupDir", "backups")

	conf.SetDefault("server.host", "0.0.0.0")
	conf.SetDefault("server.port", 8000)
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 10*time.Minute)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.name", "kantine")
	conf.SetDefault("database.user", "kantine")
	conf.SetDefault("database.password", "kantine")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("redis.address", "")
	conf.SetDefault("redis.themeChannel", "kantine.theme")

	conf.SetDefault("paypal.clientID", "")
	conf.SetDefault("paypal.clientSecret", "")
	conf.SetDefault("paypal.apiBase", "https://api-m.paypal.com")
	conf.SetDefault("paypal.pollInterval", 15*time.Second)
	conf.SetDefault("paypal.reportingLookback", 4*time.Hour)
	conf.SetDefault("paypal.backgroundPollInterval", 2*time.Minute)
	conf.SetDefault("paypal.backgroundPollEnabled", true)
	conf.SetDefault("paypal.pendingExpiration", 72*time.Hour)

	conf.SetDefault("cashbook.autoCompany", "Kaffeemaschine")
	conf.SetDefault("cashbook.summaryCompany", "Schuelerfirma")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              env,
		Debug:            conf.GetBool("debug"),
		TestMode:         env == "TEST",
		Build:            conf.GetString("build"),
		WorkDir:          workDir,
		SecretKey:        []byte(conf.GetString("secretKey")),
		AdminSecretKey:   conf.GetString("adminSecretKey"),
		DefaultFromEmail: mail.Address{Address: conf.GetString("defaultFromEmail")},
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		BackupDir:        conf.GetString("backupDir"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Port:                      conf.GetInt("server.port"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Address:      conf.GetString("redis.address"),
			ThemeChannel: conf.GetString("redis.themeChannel"),
		},
		PayPal: PayPalConfig{
			ClientID:               conf.GetString("paypal.clientID"),
			ClientSecret:           conf.GetString("paypal.clientSecret"),
			APIBase:                conf.GetString("paypal.apiBase"),
			PollInterval:           conf.GetDuration("paypal.pollInterval"),
			ReportingLookback:      conf.GetDuration("paypal.reportingLookback"),
			BackgroundPollInterval: conf.GetDuration("paypal.backgroundPollInterval"),
			BackgroundPollEnabled:  conf.GetBool("paypal.backgroundPollEnabled"),
			PendingExpiration:      conf.GetDuration("paypal.pendingExpiration"),
		},
		Cashbook: CashbookConfig{
			AutoCompany:    conf.GetString("cashbook.autoCompany"),
			SummaryCompany: conf.GetString("cashbook.summaryCompany"),
		},
	}
}
