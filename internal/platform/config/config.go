// Package config loads process configuration from the environment so
// main stays lean. All knobs use the AUMON_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Config is the full daemon configuration, resolved once at startup and
// read-only afterwards.
type Config struct {
	// Addr is the HTTP listen address for the health/metrics/query
	// surface.
	Addr string

	// PipePath is the audit record stream to read: the audit pipe
	// device on a live system, or a trail file for replay.
	PipePath string

	// EventFilter restricts assembly to the listed record types; nil
	// accepts everything.
	EventFilter []uint16

	// CaptureEnv selects exec environment capture: "none", "dyld" or
	// "full".
	CaptureEnv string

	// CaptureArgText attaches kernel argument labels to argument slots.
	CaptureArgText bool

	// NullDevice is the resolved null-device id, see ResolveNullDevice.
	NullDevice uint32

	// SockPort6HostOrder selects the byte-order policy for the port in
	// 128-bit socket address tokens. Affected kernels write it in host
	// order.
	SockPort6HostOrder bool

	// StrictAssembly makes structural record defects fatal instead of
	// skip-and-continue. Debug deployments only.
	StrictAssembly bool

	PostgresURL  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	JWTSigningKey string
}

// FromEnv builds a Config from environment variables. Values that need
// validation beyond defaulting return an error instead of guessing.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:               envOr("AUMON_ADDR", ":8321"),
		PipePath:           envOr("AUMON_PIPE", "/dev/auditpipe"),
		CaptureEnv:         envOr("AUMON_CAPTURE_ENV", "dyld"),
		CaptureArgText:     os.Getenv("AUMON_CAPTURE_ARG_TEXT") == "true",
		SockPort6HostOrder: envOr("AUMON_SOCKPORT6_HOST_ORDER", "true") == "true",
		StrictAssembly:     os.Getenv("AUMON_STRICT") == "true",
		PostgresURL:        os.Getenv("AUMON_POSTGRES_URL"),
		RedisURL:           os.Getenv("AUMON_REDIS_URL"),
		KafkaTopic:         envOr("AUMON_KAFKA_TOPIC", "aumon.events"),
		JWTSigningKey:      os.Getenv("AUMON_JWT_SIGNING_KEY"),
	}

	switch cfg.CaptureEnv {
	case "none", "dyld", "full":
	default:
		return Config{}, fmt.Errorf("AUMON_CAPTURE_ENV: unknown mode %q", cfg.CaptureEnv)
	}

	if brokers := os.Getenv("AUMON_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	filter, err := parseFilter(os.Getenv("AUMON_EVENT_FILTER"))
	if err != nil {
		return Config{}, err
	}
	cfg.EventFilter = filter

	return cfg, nil
}

// ResolveNullDevice returns the device id of path, normally /dev/null.
// It runs once at startup; the result is passed into the assembler
// rather than held as global state. AUMON_NULL_DEVICE overrides the
// lookup when replaying trails recorded on another host.
func ResolveNullDevice(path string) (uint32, error) {
	if v := os.Getenv("AUMON_NULL_DEVICE"); v != "" {
		dev, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("AUMON_NULL_DEVICE: %w", err)
		}
		return uint32(dev), nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("stat %s: no device information", path)
	}
	return uint32(st.Rdev), nil
}

func parseFilter(s string) ([]uint16, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint16, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("AUMON_EVENT_FILTER: bad event type %q", p)
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
