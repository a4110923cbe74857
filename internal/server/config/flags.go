package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/flagx"
)

// parseFlags overlays short command-line flags.
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-k string   RSA private key (PEM) path, switches signing to RS256
//	-K string   RSA public key (PEM) path
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-i int      verification code interval, seconds
//	-m string   SMS service base URL
//	-R string   redis address
//	-b string   comma-separated kafka brokers
//	-l string   log level
//
// Args are filtered through flagx.FilterArgs first so -c and -env, which
// belong to other stages, do not make parsing fail.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-k", "-K", "-t", "-r", "-i", "-m", "-R", "-b", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.PrivateKeyPath, "k", config.PrivateKeyPath, "RSA private key path")
	fs.StringVar(&config.PublicKeyPath, "K", config.PublicKeyPath, "RSA public key path")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidity := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	verificationInterval := fs.Int("i", int(config.VerificationCodeInterval.Seconds()), "verification code interval (in seconds)")

	fs.StringVar(&config.SMSServiceURL, "m", config.SMSServiceURL, "SMS service base URL")
	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "redis address")
	brokers := fs.String("b", "", "kafka brokers, comma separated")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// durations and brokers only change when their flag is given
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["t"] {
		config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	}
	if set["r"] {
		config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidity) * time.Minute
	}
	if set["i"] {
		config.VerificationCodeInterval = time.Duration(*verificationInterval) * time.Second
	}
	if set["b"] {
		config.KafkaBrokers = splitList(*brokers)
	}
}
