package config

// loader holds the sources consulted by Load.
type loader struct {
	lookup   func(string) (string, bool)
	readFile func(string) ([]byte, error)
	file     string
}

// LoaderOption is a functional option for configuring Load.
type LoaderOption func(*loader)

// WithEnv replaces the environment lookup, which defaults to os.LookupEnv.
//
// Parameters:
//   - lookup: function returning the value of a variable and whether it is set
//
// Returns:
//   - LoaderOption: option function to apply
func WithEnv(lookup func(string) (string, bool)) LoaderOption {
	return func(l *loader) {
		l.lookup = lookup
	}
}

// WithEnvMap is WithEnv backed by a map, mostly useful in tests.
//
// Parameters:
//   - env: variable name to value
//
// Returns:
//   - LoaderOption: option function to apply
func WithEnvMap(env map[string]string) LoaderOption {
	return WithEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
}

// WithFile names a TOML config file, overriding OXR_CONFIG_FILE.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - LoaderOption: option function to apply
func WithFile(path string) LoaderOption {
	return func(l *loader) {
		l.file = path
	}
}

// WithFileReader replaces the file reader, which defaults to os.ReadFile.
//
// Parameters:
//   - read: function returning the file contents
//
// Returns:
//   - LoaderOption: option function to apply
func WithFileReader(read func(string) ([]byte, error)) LoaderOption {
	return func(l *loader) {
		l.readFile = read
	}
}
