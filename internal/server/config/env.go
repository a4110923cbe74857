package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "RIDEAUTH_"

// parseEnv overlays RIDEAUTH_* variables. Values come from the process
// environment first and from the dotenv file second (".env" unless -env
// names another file). A missing default .env is fine; a missing explicit
// one panics, as does an unparsable value.
func parseEnv(config *Config, args []string, lookup func(string) (string, bool)) {
	path := flagx.LookupString(args, "env")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	file, err := godotenv.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
		file = map[string]string{}
	}

	get := func(name string) (string, bool) {
		if v, ok := lookup(envPrefix + name); ok {
			return v, true
		}
		v, ok := file[envPrefix+name]
		return v, ok
	}

	envString(get, "GRPC_ADDR", &config.EndpointAddrGRPC)
	envString(get, "DATABASE_DSN", &config.DatabaseDSN)
	envString(get, "SECRET_KEY", &config.SecretKey)
	envString(get, "PRIVATE_KEY_PATH", &config.PrivateKeyPath)
	envString(get, "PUBLIC_KEY_PATH", &config.PublicKeyPath)
	envDuration(get, "ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	envDuration(get, "REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	envDuration(get, "VERIFICATION_INTERVAL", &config.VerificationCodeInterval)
	envString(get, "SMS_SERVICE_URL", &config.SMSServiceURL)
	envDuration(get, "SMS_TIMEOUT", &config.SMSTimeout)
	envInt(get, "SMS_MAX_RETRIES", &config.SMSMaxRetries)
	envString(get, "REDIS_ADDR", &config.RedisAddr)
	envString(get, "REDIS_PASSWORD", &config.RedisPassword)
	envInt(get, "REDIS_DB", &config.RedisDB)
	if v, ok := get("KAFKA_BROKERS"); ok {
		config.KafkaBrokers = splitList(v)
	}
	envString(get, "KAFKA_TOPIC", &config.KafkaTopic)
	envString(get, "LOG_LEVEL", &config.LogLevel)
}

type getter func(string) (string, bool)

func envString(get getter, name string, dst *string) {
	if v, ok := get(name); ok {
		*dst = v
	}
}

func envDuration(get getter, name string, dst *time.Duration) {
	v, ok := get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envInt(get getter, name string, dst *int) {
	v, ok := get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
