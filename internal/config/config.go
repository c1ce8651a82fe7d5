package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	EventCreated      string
	TimerStarted      string
	TimerCompleted    string
	ReminderDelivered string
}

type SchedulerConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				EventCreated:      getEnv("KAFKA_TOPIC_EVENT_CREATED", "studyplanner.event.created"),
				TimerStarted:      getEnv("KAFKA_TOPIC_TIMER_STARTED", "studyplanner.timer.started"),
				TimerCompleted:    getEnv("KAFKA_TOPIC_TIMER_COMPLETED", "studyplanner.timer.completed"),
				ReminderDelivered: getEnv("KAFKA_TOPIC_REMINDER_DELIVERED", "studyplanner.reminder.delivered"),
			},
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvDuration("REMINDER_SCAN_INTERVAL", 60*time.Second),
			LockTTL:  getEnvDuration("REMINDER_SCAN_LOCK_TTL", 2*time.Minute),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
