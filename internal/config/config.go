// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/ammlsh/ammlsh/pkg/amm"
	"github.com/ammlsh/ammlsh/pkg/field"
	"github.com/ammlsh/ammlsh/pkg/layout"
	"github.com/ammlsh/ammlsh/pkg/lsh"
	"github.com/ammlsh/ammlsh/pkg/prf"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("config: invalid setting")

// Paths holds XDG-compliant paths for ammlsh.
type Paths struct {
	ConfigDir    string // ~/.config/ammlsh
	DataDir      string // ~/.local/share/ammlsh
	ConfigFile   string // ~/.config/ammlsh/config.toml
	DaemonSocket string // ~/.local/share/ammlsh/daemon.sock
	ReportDir    string // ~/.local/share/ammlsh/reports
}

// ExpandPath expands ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
// Panics if home directory cannot be determined when ~ expansion is needed.
func ExpandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultPaths returns the default XDG-compliant paths.
// Panics if the user's home directory cannot be determined.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}
	configDir := filepath.Join(home, ".config", "ammlsh")
	dataDir := filepath.Join(home, ".local", "share", "ammlsh")

	return Paths{
		ConfigDir:    configDir,
		DataDir:      dataDir,
		ConfigFile:   filepath.Join(configDir, "config.toml"),
		DaemonSocket: filepath.Join(dataDir, "daemon.sock"),
		ReportDir:    filepath.Join(dataDir, "reports"),
	}
}

// EnsureDirectories creates config and data directories if they don't exist.
func (p Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0700); err != nil {
		return err
	}
	return os.MkdirAll(p.DataDir, 0700)
}

// Config is the full ammlsh configuration.
type Config struct {
	LSH    LSHConfig    `toml:"lsh"`
	Layout LayoutConfig `toml:"layout"`
	Search SearchConfig `toml:"search"`
	Daemon DaemonConfig `toml:"daemon"`
}

// LSHConfig selects the hash family.
type LSHConfig struct {
	Bits            int    `toml:"bits"`
	Salt            uint64 `toml:"salt"`
	SaltLabel       string `toml:"salt_label"` // overrides salt when set
	Mode            string `toml:"mode"`
	Hash            string `toml:"hash"`
	DimensionOffset uint64 `toml:"dimension_offset"`
	Workers         int    `toml:"workers"`
	Memoize         bool   `toml:"memoize"`
}

// LayoutConfig selects the scenario fields and how each is expanded.
type LayoutConfig struct {
	Kind    string   `toml:"kind"`
	MaxBits uint     `toml:"max_bits"`
	Cutoff  uint     `toml:"cutoff"`
	Fields  []string `toml:"fields"`
}

// SearchConfig holds perturbation search and sweep parameters.
type SearchConfig struct {
	SwapDirection  string   `toml:"swap_direction"`
	FavorableHigh  uint64   `toml:"favorable_high"` // 0 selects twice the output-side balance
	AdverseHigh    uint64   `toml:"adverse_high"`   // 0 selects twice the input-side balance
	TimeoutSeconds int      `toml:"timeout_seconds"`
	DriftSteps     int      `toml:"drift_steps"`
	DriftStep      uint64   `toml:"drift_step"`
	SlippageBps    []uint64 `toml:"slippage_bps"`
}

// DaemonConfig holds settings for ammlsh-daemon.
type DaemonConfig struct {
	Directories  []string `toml:"directories"`
	Extensions   []string `toml:"extensions"`
	IgnoreHidden bool     `toml:"ignore_hidden"`
	OutputDir    string   `toml:"output_dir"`
	Socket       string   `toml:"socket"`
	Workers      int      `toml:"workers"`
}

// Default returns a Config with sensible defaults: a 64-bit native Poseidon
// hash over the post-trade balances and output.
func Default() Config {
	paths := DefaultPaths()
	return Config{
		LSH: LSHConfig{
			Bits:    64,
			Mode:    field.ModeNative.String(),
			Hash:    prf.NamePoseidon,
			Workers: 1,
		},
		Layout: LayoutConfig{
			Kind:    string(layout.KindIdentity),
			MaxBits: 64,
			Fields:  fieldNames(layout.DefaultFields),
		},
		Search: SearchConfig{
			SwapDirection:  amm.XToY.String(),
			TimeoutSeconds: 60,
			DriftSteps:     64,
			DriftStep:      100,
			SlippageBps:    []uint64{10, 50, 100, 500},
		},
		Daemon: DaemonConfig{
			Directories:  []string{},
			Extensions:   []string{".csv"},
			IgnoreHidden: true,
			OutputDir:    paths.ReportDir,
			Socket:       paths.DaemonSocket,
			Workers:      2,
		},
	}
}

// Load loads a Config from a TOML file on top of Default.
// Paths with ~ are expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	for i, dir := range cfg.Daemon.Directories {
		cfg.Daemon.Directories[i] = ExpandPath(dir)
	}
	cfg.Daemon.OutputDir = ExpandPath(cfg.Daemon.OutputDir)
	cfg.Daemon.Socket = ExpandPath(cfg.Daemon.Socket)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path if it exists and returns Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return &cfg, nil
	}
	return Load(path)
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.LSH.Bits <= 0 {
		return fmt.Errorf("%w: lsh.bits must be positive, got %d", ErrInvalid, c.LSH.Bits)
	}
	if c.LSH.Workers < 0 {
		return fmt.Errorf("%w: lsh.workers must not be negative", ErrInvalid)
	}
	if _, err := field.ParseMode(c.LSH.Mode); err != nil {
		return fmt.Errorf("%w: lsh.mode: %v", ErrInvalid, err)
	}
	if _, err := prf.New(c.LSH.Hash); err != nil {
		return fmt.Errorf("%w: lsh.hash: %v", ErrInvalid, err)
	}
	if _, _, err := c.LayoutSpec(); err != nil {
		return fmt.Errorf("%w: layout: %v", ErrInvalid, err)
	}
	if _, err := c.SwapDirection(); err != nil {
		return fmt.Errorf("%w: search.swap_direction: %v", ErrInvalid, err)
	}
	if c.Search.DriftSteps < 0 {
		return fmt.Errorf("%w: search.drift_steps must not be negative", ErrInvalid)
	}
	for _, bps := range c.Search.SlippageBps {
		if bps > 10_000 {
			return fmt.Errorf("%w: search.slippage_bps %d exceeds 10000", ErrInvalid, bps)
		}
	}
	return nil
}

// LayoutSpec returns the parsed layout and scenario fields.
func (c Config) LayoutSpec() (layout.Layout, []layout.Field, error) {
	kind, err := layout.ParseKind(c.Layout.Kind)
	if err != nil {
		return layout.Layout{}, nil, err
	}
	l := layout.Layout{Kind: kind, MaxBits: c.Layout.MaxBits, Cutoff: c.Layout.Cutoff}
	if err := l.Validate(); err != nil {
		return layout.Layout{}, nil, err
	}
	fields, err := layout.ParseFields(strings.Join(c.Layout.Fields, ","))
	if err != nil {
		return layout.Layout{}, nil, err
	}
	return l, fields, nil
}

// SwapDirection parses search.swap_direction.
func (c Config) SwapDirection() (amm.Direction, error) {
	switch c.Search.SwapDirection {
	case "", amm.XToY.String():
		return amm.XToY, nil
	case amm.YToX.String():
		return amm.YToX, nil
	default:
		return 0, fmt.Errorf("%w: %q", amm.ErrUnknownDirection, c.Search.SwapDirection)
	}
}

// EngineConfig builds the lsh engine configuration. The dimension count
// follows from the layout and field list.
func (c Config) EngineConfig() (lsh.Config, error) {
	mode, err := field.ParseMode(c.LSH.Mode)
	if err != nil {
		return lsh.Config{}, err
	}
	hasher, err := prf.New(c.LSH.Hash)
	if err != nil {
		return lsh.Config{}, err
	}
	l, fields, err := c.LayoutSpec()
	if err != nil {
		return lsh.Config{}, err
	}

	salt := c.LSH.Salt
	if c.LSH.SaltLabel != "" {
		salt = prf.DeriveSalt(c.LSH.SaltLabel)
	}

	return lsh.Config{
		Bits:            c.LSH.Bits,
		Dimensions:      len(fields) * l.Width(),
		Salt:            salt,
		DimensionOffset: c.LSH.DimensionOffset,
		Mode:            mode,
		Hasher:          hasher,
		Workers:         c.LSH.Workers,
		Memoize:         c.LSH.Memoize,
	}, nil
}

func fieldNames(fields []layout.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return names
}
