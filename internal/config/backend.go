package config

// Store holds non-secret config values in the platform's native place:
// UserDefaults on macOS, a JSON file elsewhere. Values are returned as text
// and parsed against the key table by the loader, so a store never needs
// to know a key's type.
type Store interface {
	Lookup(key string) (raw string, ok bool, err error)
	// Put persists v, which is a string, int or bool.
	Put(key string, v any) error
	Delete(key string) error
}
