package engine

type ApplicationConfig struct {
	// The application name used in logs and as the device's application name.
	Name string `toml:"name"`
	// Number of frames to render before stopping, 0 runs until interrupted.
	Frames   uint64 `toml:"frames"`
	LogLevel string `toml:"log_level"`
}
