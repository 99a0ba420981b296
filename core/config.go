package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store engines
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type (
	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address
		NotifyEmail      string // archival & import reports go here when set

		FrontendBaseURL           string // password reset links point here
		PasswordResetTimeoutDelta time.Duration

		Server  serverConfig
		Store   storeConfig
		Archive archiveConfig
		Import  importConfig
	}

	serverConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	storeConfig struct {
		Engine string

		// postgres
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool

		// redis
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		RedisPrefix   string
	}

	archiveConfig struct {
		PurgeURL string // privileged section delete endpoint; empty disables it
		PurgeKey string
	}

	importConfig struct {
		RowDelay           time.Duration
		MaxErrors          int
		MaxDuplicateErrors int
	}
)

func (c storeConfig) Address() string {
	return c.Host + ":" + c.Port
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment.
// Env vars are prefixed with the upper-cased env name, eg. `DEV_STORE_ENGINE=redis`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("app_name", "Registrar")
	v.SetDefault("build", "develop")
	v.SetDefault("secret_key", "k9#w2v!pz7u@3nq$x+8yrd6m)t^e4(fh0cj=lsb5a_og*i1")
	v.SetDefault("default_from_email", "Registrar <noreply@localhost>")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("server_jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server_jwt_refresh_expiration_delta", 4*time.Hour)

	v.SetDefault("store_engine", StoreMemory)
	v.SetDefault("store_host", "localhost")
	v.SetDefault("store_port", "5432")
	v.SetDefault("store_name", "registrar")
	v.SetDefault("store_disable_tls", true)
	v.SetDefault("store_redis_addr", "localhost:6379")
	v.SetDefault("store_redis_db", 0)
	v.SetDefault("store_redis_prefix", "registrar")

	v.SetDefault("import_row_delay", time.Duration(0))
	v.SetDefault("import_max_errors", 5)
	v.SetDefault("import_max_duplicate_errors", 3)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:        v.GetString("app_name"),
		Env:            env,
		Build:          v.GetString("build"),
		Debug:          v.GetBool("debug"),
		TestMode:       v.GetBool("test_mode"),
		WorkDir:        workDir,
		SecretKey:      v.GetString("secret_key"),
		RollbarToken:   v.GetString("rollbar_token"),
		SendgridApiKey: v.GetString("sendgrid_api_key"),
		NotifyEmail:    v.GetString("notify_email"),

		FrontendBaseURL:           strings.TrimRight(v.GetString("frontend_base_url"), "/"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		Server: serverConfig{
			Host:                      v.GetString("server_host"),
			Address:                   v.GetString("server_address"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("server_jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwt_refresh_expiration_delta"),
		},
		Store: storeConfig{
			Engine:        strings.ToLower(v.GetString("store_engine")),
			Host:          v.GetString("store_host"),
			Port:          v.GetString("store_port"),
			User:          v.GetString("store_user"),
			Password:      v.GetString("store_password"),
			AdminUser:     v.GetString("store_admin_user"),
			AdminPassword: v.GetString("store_admin_password"),
			Name:          v.GetString("store_name"),
			DisableTLS:    v.GetBool("store_disable_tls"),
			RedisAddr:     v.GetString("store_redis_addr"),
			RedisPassword: v.GetString("store_redis_password"),
			RedisDB:       v.GetInt("store_redis_db"),
			RedisPrefix:   v.GetString("store_redis_prefix"),
		},
		Archive: archiveConfig{
			PurgeURL: v.GetString("archive_purge_url"),
			PurgeKey: v.GetString("archive_purge_key"),
		},
		Import: importConfig{
			RowDelay:           v.GetDuration("import_row_delay"),
			MaxErrors:          v.GetInt("import_max_errors"),
			MaxDuplicateErrors: v.GetInt("import_max_duplicate_errors"),
		},
	}

	from, err := mail.ParseAddress(v.GetString("default_from_email"))
	if err != nil {
		log.Fatalf("config.mail.ParseAddress(%s): %v", v.GetString("default_from_email"), err)
	}
	conf.DefaultFromEmail = *from
	return conf
}

// NewTestConfig returns a Config suitable for tests: in-memory store, no delays.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.TestMode = true
	conf.Store.Engine = StoreMemory
	conf.Import.RowDelay = 0
	conf.Archive.PurgeURL = ""
	return conf
}
