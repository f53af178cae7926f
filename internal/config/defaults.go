package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.ProductionDBPath == "" {
		cfg.Storage.ProductionDBPath = "/usr/local/var/susume/data/db/production.db"
	}
	if cfg.Storage.AnalyticsDBPath == "" {
		cfg.Storage.AnalyticsDBPath = "/usr/local/var/susume/data/db/analytics.db"
	}
	if cfg.Storage.ModelDir == "" {
		cfg.Storage.ModelDir = "/usr/local/var/susume/data/models"
	}
	if cfg.Serving.DefaultLimit == 0 {
		cfg.Serving.DefaultLimit = 10
	}
	if cfg.Serving.MaxLimit == 0 {
		cfg.Serving.MaxLimit = 50
	}
	// Training.PrecomputeTopK defaults to 0 (no neighbor cache): per-query
	// scans are fast enough until the catalog grows past a few thousand items.
}
