package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	MongoURI             string
	RedisAddr            string
	RabbitURL            string
	OTLPEndpoint         string
	LockTimeout          time.Duration
	SweepInterval        time.Duration
	MaxTicketsPerBooking int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	lockTimeout, _ := time.ParseDuration(os.Getenv("LOCK_TIMEOUT"))
	if lockTimeout == 0 {
		lockTimeout = 3 * time.Second
	}
	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}
	maxTickets, _ := strconv.Atoi(os.Getenv("MAX_TICKETS_PER_BOOKING"))
	if maxTickets == 0 {
		maxTickets = 20
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		HTTPAddr:             addr,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MongoURI:             os.Getenv("MONGO_URI"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RabbitURL:            os.Getenv("RABBIT_URL"),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LockTimeout:          lockTimeout,
		SweepInterval:        sweepInterval,
		MaxTicketsPerBooking: maxTickets,
	}, nil
}
