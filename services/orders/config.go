package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig contém os dados de conexão com o Postgres
type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// DSN monta a string de conexão do pgx com os limites do pool
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=25&pool_min_conns=5",
		c.User, c.Password, c.Host, c.Port, c.Name,
	)
}

// Config contém a configuração do serviço de pedidos
type Config struct {
	Port        string
	ServiceName string
	ServiceURL  string
	Database    DatabaseConfig

	OTLPEndpoint string

	PaymentsServiceURL string
	DTMServer          string

	OpenWeatherBaseURL string
	OpenWeatherAPIKey  string

	// Reconciliation
	ReconcileInterval   time.Duration
	EligibilityWindow   time.Duration
	StaleVerifyingAfter time.Duration
	ReconcileWorkers    int
	ExternalCallTimeout time.Duration
	RunPassOnStart      bool

	// Intake
	ForecastHorizon       time.Duration
	DefaultAmount         int64
	DefaultCurrency       string
	DefaultMinTemperature float64
	DefaultRainDisallowed bool

	ShutdownTimeout time.Duration
}

// LoadConfig carrega a Config das variáveis de ambiente
func LoadConfig() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVICE_NAME", "orders-service")
	v.SetDefault("SERVICE_URL", "http://orders-service:8080")
	v.SetDefault("DATABASE_USER", "root")
	v.SetDefault("DATABASE_PASSWORD", "pass")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "orders_db")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("PAYMENTS_SERVICE_URL", "http://payments-service:8080")
	v.SetDefault("DTM_SERVER", "")
	v.SetDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("OPENWEATHER_API_KEY", "")
	v.SetDefault("RECONCILE_INTERVAL", time.Hour)
	v.SetDefault("ELIGIBILITY_WINDOW", 24*time.Hour)
	v.SetDefault("STALE_VERIFYING_AFTER", 15*time.Minute)
	v.SetDefault("RECONCILE_WORKERS", 4)
	v.SetDefault("EXTERNAL_CALL_TIMEOUT", 10*time.Second)
	v.SetDefault("RUN_PASS_ON_START", false)
	v.SetDefault("FORECAST_HORIZON", 5*24*time.Hour)
	v.SetDefault("DEFAULT_AMOUNT", 1000)
	v.SetDefault("DEFAULT_CURRENCY", "eur")
	v.SetDefault("DEFAULT_MIN_TEMPERATURE", 20.0)
	v.SetDefault("DEFAULT_RAIN_DISALLOWED", true)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	return Config{
		Port:        v.GetString("PORT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		ServiceURL:  v.GetString("SERVICE_URL"),
		Database: DatabaseConfig{
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetString("DATABASE_PORT"),
			Name:     v.GetString("DATABASE_NAME"),
		},
		OTLPEndpoint:          v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PaymentsServiceURL:    v.GetString("PAYMENTS_SERVICE_URL"),
		DTMServer:             v.GetString("DTM_SERVER"),
		OpenWeatherBaseURL:    v.GetString("OPENWEATHER_BASE_URL"),
		OpenWeatherAPIKey:     v.GetString("OPENWEATHER_API_KEY"),
		ReconcileInterval:     v.GetDuration("RECONCILE_INTERVAL"),
		EligibilityWindow:     v.GetDuration("ELIGIBILITY_WINDOW"),
		StaleVerifyingAfter:   v.GetDuration("STALE_VERIFYING_AFTER"),
		ReconcileWorkers:      v.GetInt("RECONCILE_WORKERS"),
		ExternalCallTimeout:   v.GetDuration("EXTERNAL_CALL_TIMEOUT"),
		RunPassOnStart:        v.GetBool("RUN_PASS_ON_START"),
		ForecastHorizon:       v.GetDuration("FORECAST_HORIZON"),
		DefaultAmount:         v.GetInt64("DEFAULT_AMOUNT"),
		DefaultCurrency:       v.GetString("DEFAULT_CURRENCY"),
		DefaultMinTemperature: v.GetFloat64("DEFAULT_MIN_TEMPERATURE"),
		DefaultRainDisallowed: v.GetBool("DEFAULT_RAIN_DISALLOWED"),
		ShutdownTimeout:       v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
}

// ReconcilerConfig extrai as configurações da reconciliação
func (c Config) ReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		EligibilityWindow: c.EligibilityWindow,
		StaleAfter:        c.StaleVerifyingAfter,
		Workers:           c.ReconcileWorkers,
		CallTimeout:       c.ExternalCallTimeout,
	}
}

// IntakeConfig extrai os padrões da criação de pedidos
func (c Config) IntakeConfig() IntakeConfig {
	return IntakeConfig{
		ForecastHorizon: c.ForecastHorizon,
		DefaultAmount:   c.DefaultAmount,
		DefaultCurrency: c.DefaultCurrency,
		DefaultConditions: RequiredConditions{
			MinimumTemperatureCelsius: c.DefaultMinTemperature,
			RainDisallowed:            c.DefaultRainDisallowed,
		},
	}
}
