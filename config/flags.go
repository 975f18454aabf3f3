package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// Version is the sealcheck release reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string
	Genesis string

	// Import
	ImportFile    string
	ImportWorkers int
	ImportCache   int
	SkipSeal      bool

	// Dev mining
	MineBlocks  int
	MineThreads int
	KeyFile     string
	TxFile      string
	MinGasPrice uint64

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses command-line arguments (without the program name).
// Returns flag.ErrHelp when -h or --help is given.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("sealcheck", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet or dev)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.Genesis, "genesis", "", "Genesis JSON file (overrides the network preset)")

	// Import
	fs.StringVar(&f.ImportFile, "import", "", "Import a block from a JSON file")
	fs.IntVar(&f.ImportWorkers, "import-workers", 0, "Concurrent transaction checks per block")
	fs.IntVar(&f.ImportCache, "import-cache", 0, "Known-block cache entries")
	fs.BoolVar(&f.SkipSeal, "skip-seal", false, "Import without checking the seal")

	// Dev mining
	fs.IntVar(&f.MineBlocks, "mine", 0, "Build and seal this many blocks on the head")
	fs.IntVar(&f.MineThreads, "mine-threads", 0, "ProofOfWork sealing threads")
	fs.StringVar(&f.KeyFile, "key-file", "", "Encrypted authority key file (BasicAuthority)")
	fs.StringVar(&f.TxFile, "txs", "", "Queue transactions from a JSON file for mining")
	fs.Uint64Var(&f.MinGasPrice, "min-gas-price", 0, "Minimum gas price for queued transactions")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.Help {
		return nil, flag.ErrHelp
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// Detect flags left unparsed because a positional argument stopped the
	// parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	if f.MineBlocks < 0 {
		return nil, fmt.Errorf("--mine must not be negative")
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Genesis != "" {
		cfg.GenesisFile = f.Genesis
	}

	// Import
	if f.ImportWorkers != 0 {
		cfg.Import.Workers = f.ImportWorkers
	}
	if f.ImportCache != 0 {
		cfg.Import.CacheSize = f.ImportCache
	}

	// Mining
	if f.MineThreads != 0 {
		cfg.Mining.Threads = f.MineThreads
	}
	if f.KeyFile != "" {
		cfg.Mining.KeyFile = f.KeyFile
	}
	if f.MinGasPrice != 0 {
		cfg.Mempool.MinGasPrice = f.MinGasPrice
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the help text to w.
func PrintUsage(w io.Writer) {
	usage := `sealcheck - seal engine self-check, block import and dev mining

Usage:
  sealcheck [options]

Core Options:
  --network       Network: mainnet, testnet or dev (default: mainnet)
  --datadir       Data directory (default: ~/.sealcore)
  --config, -c    Config file path (default: <datadir>/sealcore.conf)
  --genesis       Genesis JSON file (default: built-in preset)

Import Options:
  --import          Import a block from a JSON file
  --import-workers  Concurrent transaction checks per block (default: 4)
  --import-cache    Known-block cache entries (default: 1024)
  --skip-seal       Import without checking the seal

Dev Mining Options:
  --mine           Build and seal N blocks on the head
  --mine-threads   ProofOfWork sealing threads (default: 1)
  --key-file       Encrypted authority key (BasicAuthority chains)
  --txs            Queue transactions from a JSON array for mining
  --min-gas-price  Minimum gas price for queued transactions (default: 0)

Logging Options:
  --log-level     Log level: trace, debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout only)
  --log-json      Output logs as JSON

Examples:
  # Check that every seal engine is registered and mine 5 dev blocks
  sealcheck --network=dev --mine=5

  # Mine queued transactions into a dev block
  sealcheck --network=dev --txs=txs.json --mine=1

  # Import a block into a testnet store
  sealcheck --network=testnet --import=block.json
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}

	network := Mainnet
	if flags.Network != "" {
		network = NetworkType(strings.ToLower(flags.Network))
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// LoadFromFile loads config from defaults + conf file only (no CLI flags).
func LoadFromFile(dataDir string, network NetworkType) (*Config, error) {
	cfg := Default(network)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}
	fileValues, err := LoadFile(cfg.ConfigFile())
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
