package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOverlay writes set environment variables over existing values. Blank
// variables count as unset. Malformed values are collected rather than
// silently replaced by the current value.
type envOverlay struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnvOverlay() *envOverlay {
	return &envOverlay{lookup: os.LookupEnv}
}

func (e *envOverlay) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envOverlay) setString(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = v
	}
}

func (e *envOverlay) setInt(key string, dst *int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return
	}
	*dst = n
}

func (e *envOverlay) setDuration(key string, dst *Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return
	}
	*dst = Duration(d)
}

func (e *envOverlay) setBool(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	b, known := ParseBool(v)
	if !known {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return
	}
	*dst = b
}

func (e *envOverlay) err() error { return errors.Join(e.errs...) }

// ParseBool accepts the usual on/off spellings. The second result is false
// for anything else.
func ParseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
