package config

import (
	"fmt"
	"strconv"
	"strings"
)

// envReader overlays environment variables onto config fields. The first
// parse failure is kept in err and later calls become no-ops, so applyEnv
// can list every variable without checking after each one.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) value(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.err = fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
		return
	}
	*dst = f
}

// bool accepts strconv.ParseBool spellings plus yes/no and on/off.
func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "yes", "on":
		*dst = true
		return
	case "no", "off":
		*dst = false
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
		return
	}
	*dst = b
}
