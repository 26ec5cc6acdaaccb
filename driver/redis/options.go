package redis

import (
	"os"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// Options returns client options from REDIS_ADDR (default
// "localhost:6379"), REDIS_PASSWORD and REDIS_DB (default 0).
//
//	client := goredis.NewClient(redis.Options())
//
// Build goredis.Options directly for cluster, sentinel or TLS setups.
func Options() *goredis.Options {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return &goredis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
}

// OptionsWithOverrides starts from Options and applies every non-zero
// argument on top.
func OptionsWithOverrides(addr, password string, poolSize, minIdleConns int) *goredis.Options {
	opts := Options()
	if addr != "" {
		opts.Addr = addr
	}
	if password != "" {
		opts.Password = password
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	if minIdleConns > 0 {
		opts.MinIdleConns = minIdleConns
	}
	return opts
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
