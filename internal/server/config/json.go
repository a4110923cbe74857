package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/flagx"
	"github.com/dmitrijs2005/rideauth/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// strings such as "10m" and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	PrivateKeyPath               string         `json:"private_key_path"`
	PublicKeyPath                string         `json:"public_key_path"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	VerificationCodeInterval     timex.Duration `json:"verification_code_interval"`
	SMSServiceURL                string         `json:"sms_service_url"`
	SMSTimeout                   timex.Duration `json:"sms_timeout"`
	SMSMaxRetries                *int           `json:"sms_max_retries"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      *int           `json:"redis_db"`
	KafkaBrokers                 []string       `json:"kafka_brokers"`
	KafkaTopic                   string         `json:"kafka_topic"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays values from the JSON file given via -c/-config. Only
// keys present in the file change the config. A missing or malformed file
// panics: the server must not start on a half-read config.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.JsonConfigFlags(args)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.PrivateKeyPath, c.PrivateKeyPath)
	setString(&config.PublicKeyPath, c.PublicKeyPath)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.VerificationCodeInterval, c.VerificationCodeInterval)
	setString(&config.SMSServiceURL, c.SMSServiceURL)
	setDuration(&config.SMSTimeout, c.SMSTimeout)
	if c.SMSMaxRetries != nil {
		config.SMSMaxRetries = *c.SMSMaxRetries
	}
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if len(c.KafkaBrokers) > 0 {
		config.KafkaBrokers = c.KafkaBrokers
	}
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
