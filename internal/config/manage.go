package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// KeyInfo is one row of `spark config show`.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll lists the effective value of every non-secret key.
func ShowAll(cfg Config) []KeyInfo {
	rows := make([]KeyInfo, 0, len(specs))
	for _, s := range publicSpecs() {
		rows = append(rows, KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprint(s.extract(cfg))})
	}
	return rows
}

// ValidKeys names the keys SetKey accepts.
func ValidKeys() []string {
	var keys []string
	for _, s := range publicSpecs() {
		keys = append(keys, s.key)
	}
	return keys
}

func publicSpecs() []keySpec {
	return slices.DeleteFunc(slices.Clone(specs), func(s keySpec) bool { return s.secret })
}

// SetKey validates value for key and persists it in the platform store.
func SetKey(key, value string) error {
	return setKey(newPlatformStore(), key, value)
}

func setKey(st Store, key, value string) error {
	i := slices.IndexFunc(specs, func(s keySpec) bool { return s.key == key })
	if i < 0 {
		return fmt.Errorf("unknown config key: %q", key)
	}
	s := specs[i]
	if s.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s%s", key, s.env, secretHint(s.account))
	}

	v, err := parseValue(s.typ, value)
	if err != nil {
		return fmt.Errorf("invalid %s value for %s: %w", typeName(s.typ), key, err)
	}
	if allowed, ok := enums[key]; ok && !slices.Contains(allowed, value) {
		return fmt.Errorf("invalid value %q for %s: must be one of %s", value, key, strings.Join(nonEmpty(allowed), ", "))
	}
	// Durations are stored normalized so "90s" reads back as "1m30s".
	if d, ok := v.(time.Duration); ok {
		v = d.String()
	}
	return st.Put(key, v)
}
