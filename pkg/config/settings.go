package config

// Settings holds the engine settings read from a Config. Fields use plain
// types; the engine maps them onto its option values.
type Settings struct {
	// Strategy selects the execution backend: "default", "interpreter"
	// or "jit".
	Strategy string
	// ReturnKind is the desired result kind: "numeric" or "string".
	ReturnKind string
	// ReturnDim is the desired numeric dimension.
	ReturnDim int
	// CacheSize is the compiled-expression cache capacity; 0 disables
	// caching.
	CacheSize int
	// MaxDepth bounds expression nesting during parsing.
	MaxDepth int
	// Debug enables debug-level stage logging.
	Debug bool
}

// ReadSettings extracts engine settings from cfg, applying defaults for
// missing keys.
func ReadSettings(cfg Config) Settings {
	return Settings{
		Strategy:   cfg.String("strategy", "default"),
		ReturnKind: cfg.String("return_kind", "numeric"),
		ReturnDim:  cfg.Int("return_dim", 3),
		CacheSize:  cfg.Int("cache_size", 256),
		MaxDepth:   cfg.Int("max_depth", 100),
		Debug:      cfg.Bool("debug", false),
	}
}
