package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Import: ImportConfig{
			Workers:   4,
			CacheSize: 1024,
		},
		Mempool: MempoolConfig{
			MaxSize:     5000,
			MinGasPrice: 0,
		},
		Mining: MiningConfig{
			Threads: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	return cfg
}

// DefaultDev returns the default node configuration for a local dev chain.
func DefaultDev() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Dev
	cfg.Log.Level = "debug"
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Dev:
		return DefaultDev()
	default:
		return DefaultMainnet()
	}
}
