package config

import (
	"os"
	"strconv"
)

const (
	StoreSqlite = "sqlite"
	StoreDynamo = "dynamo"
)

type Config struct {
	DevMode  bool
	HostPort string
	// Redis fans page updates out between relay instances
	RedisEndpoint string
	StoreType     string
	SqlitePath    string
	// DynamoDB is only used when StoreType is "dynamo"
	DynamoDBEndpoint string
	DynamoDBTable    string
	// JWTSecret is base64 encoded
	JWTSecret           string
	AllowedOrigin       string
	SnapshotFlushMillis int
}

func Load() Config {
	return Config{
		DevMode:             getenv("DEV_MODE", "false") == "true",
		HostPort:            getenv("HOST_PORT", "8080"),
		RedisEndpoint:       getenv("REDIS_ENDPOINT", "localhost:6379"),
		StoreType:           getenv("STORE_TYPE", StoreSqlite),
		SqlitePath:          getenv("SQLITE_PATH", "./data/flipbook.db"),
		DynamoDBEndpoint:    getenv("DYNAMODB_ENDPOINT", ""),
		DynamoDBTable:       getenv("DYNAMODB_TABLE", "Flipbook"),
		JWTSecret:           getenv("JWT_SECRET", ""),
		AllowedOrigin:       getenv("ALLOWED_ORIGIN", "*"),
		SnapshotFlushMillis: getenvInt("SNAPSHOT_FLUSH_MS", 500),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
