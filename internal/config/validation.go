package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// normalizeDuration converts bare numbers to durations in seconds. YAML files and env vars often carry "30" where
// "30s" was meant, which would otherwise decode as 30 nanoseconds. Returns the duration and true if the value was a
// bare number.
func normalizeDuration(value any) (time.Duration, bool) {
	switch v := value.(type) {
	case int:
		return time.Duration(v) * time.Second, true
	case int64:
		return time.Duration(v) * time.Second, true
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(f * float64(time.Second)), true
	default:
		return 0, false
	}
}

// normalizeDurationKey rewrites key in viper when it holds a bare number.
func normalizeDurationKey(key string) {
	raw := viper.Get(key)
	d, ok := normalizeDuration(raw)
	if !ok {
		return
	}

	// Write warning to stderr for visibility during config initialization
	fmt.Fprintf(os.Stderr, "WARNING: %s was provided without a unit (%v) and is interpreted as %s. "+
		"Use an explicit unit like \"%s\" to avoid this warning.\n", key, raw, d, d)
	viper.Set(key, d)
}
