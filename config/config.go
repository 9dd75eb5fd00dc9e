// Package config loads coupling run settings from yaml. Embedded defaults
// load first; a user file overlays only the keys it sets.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/mengjing120/walberla/correction"
	"github.com/mengjing120/walberla/coupling"
	"github.com/mengjing120/walberla/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all settings of a coupling run.
type Config struct {
	Domain      DomainConfig      `yaml:"domain"`
	Fluid       FluidConfig       `yaml:"fluid"`
	Coupling    CouplingConfig    `yaml:"coupling"`
	Lubrication LubricationConfig `yaml:"lubrication"`
	VirtualMass VirtualMassConfig `yaml:"virtual_mass"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// DomainConfig describes the global lattice and its decomposition.
type DomainConfig struct {
	Cells      []int  `yaml:"cells"`      // global interior cells per axis
	Blocks     []int  `yaml:"blocks"`     // block grid per axis
	Ranks      int    `yaml:"ranks"`      // rank goroutines
	Periodic   []bool `yaml:"periodic"`   // periodicity per axis
	Assignment string `yaml:"assignment"` // block, round-robin or morton
}

// FluidConfig holds the lattice fluid parameters.
type FluidConfig struct {
	Omega        float64 `yaml:"omega"`   // BGK relaxation rate, in (0,2)
	Density      float64 `yaml:"density"` // reference density
	Compressible bool    `yaml:"compressible"`
}

// CouplingConfig selects the coupling algorithms.
type CouplingConfig struct {
	Boundary        string `yaml:"boundary"`      // simple or interpolated
	Reconstructor   string `yaml:"reconstructor"` // equilibrium, eq-noneq or grad
	Averaging       string `yaml:"averaging"`     // none, euler or second-order
	AveragingWindow int    `yaml:"averaging_window"`
}

// LubricationConfig controls the squeeze-film correction.
type LubricationConfig struct {
	Enabled bool    `yaml:"enabled"`
	Cutoff  float64 `yaml:"cutoff"`  // gap below which the correction acts
	MinGap  float64 `yaml:"min_gap"` // resolution floor the gap is clamped to
}

// VirtualMassConfig controls the added-mass correction.
type VirtualMassConfig struct {
	Enabled           bool      `yaml:"enabled"`
	Coefficient       float64   `yaml:"coefficient"`
	OmegaCoefficient  float64   `yaml:"omega_coefficient"`
	FluidAcceleration []float64 `yaml:"fluid_acceleration"`
}

// TelemetryConfig controls the per-cycle load recording. An empty dir
// disables it.
type TelemetryConfig struct {
	Dir   string `yaml:"dir"`
	Every int    `yaml:"every"` // record every n-th cycle
}

// Load reads the embedded defaults, overlays the file at path when path is
// non-empty and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges, extents and enum strings.
func (c *Config) Validate() error {
	d := &c.Domain
	if len(d.Cells) != 3 || len(d.Blocks) != 3 || len(d.Periodic) != 3 {
		return fmt.Errorf("domain: cells, blocks and periodic must have 3 entries")
	}
	nBlocks := 1
	for a := 0; a < 3; a++ {
		if d.Cells[a] <= 0 || d.Blocks[a] <= 0 {
			return fmt.Errorf("domain: non-positive extent on axis %d", a)
		}
		if d.Cells[a]%d.Blocks[a] != 0 {
			return fmt.Errorf("domain: %d cells do not divide into %d blocks on axis %d",
				d.Cells[a], d.Blocks[a], a)
		}
		nBlocks *= d.Blocks[a]
	}
	if d.Ranks < 1 || d.Ranks > nBlocks {
		return fmt.Errorf("domain: %d ranks for %d blocks", d.Ranks, nBlocks)
	}
	if _, err := ParseAssignment(d.Assignment); err != nil {
		return err
	}

	if c.Fluid.Omega <= 0 || c.Fluid.Omega >= 2 {
		return fmt.Errorf("fluid: relaxation rate %v outside (0,2)", c.Fluid.Omega)
	}
	if c.Fluid.Density <= 0 {
		return fmt.Errorf("fluid: non-positive density %v", c.Fluid.Density)
	}

	if _, err := ParseBoundary(c.Coupling.Boundary); err != nil {
		return err
	}
	if _, err := ParseReconstructor(c.Coupling.Reconstructor); err != nil {
		return err
	}
	if _, err := ParseAveraging(c.Coupling.Averaging); err != nil {
		return err
	}
	if c.Coupling.AveragingWindow < 1 {
		return fmt.Errorf("coupling: averaging window %d must be positive", c.Coupling.AveragingWindow)
	}

	if c.Lubrication.Enabled {
		if c.Lubrication.Cutoff <= 0 {
			return fmt.Errorf("lubrication: non-positive cutoff %v", c.Lubrication.Cutoff)
		}
		if c.Lubrication.MinGap <= 0 || c.Lubrication.MinGap >= c.Lubrication.Cutoff {
			return fmt.Errorf("lubrication: min gap %v outside (0, %v)", c.Lubrication.MinGap, c.Lubrication.Cutoff)
		}
	}

	if c.VirtualMass.Enabled {
		if c.VirtualMass.Coefficient < 0 || c.VirtualMass.OmegaCoefficient < 0 {
			return fmt.Errorf("virtual_mass: negative coefficients")
		}
	}
	if n := len(c.VirtualMass.FluidAcceleration); n != 0 && n != 3 {
		return fmt.Errorf("virtual_mass: fluid_acceleration must have 3 entries, got %d", n)
	}

	if c.Telemetry.Every < 1 {
		return fmt.Errorf("telemetry: every %d must be positive", c.Telemetry.Every)
	}
	return nil
}

// Layout converts the domain section. Call after Validate.
func (c *Config) Layout() domain.Layout {
	strategy, err := ParseAssignment(c.Domain.Assignment)
	if err != nil {
		panic(err)
	}
	l := domain.Layout{Ranks: c.Domain.Ranks, Strategy: strategy}
	copy(l.Cells[:], c.Domain.Cells)
	copy(l.Blocks[:], c.Domain.Blocks)
	copy(l.Periodic[:], c.Domain.Periodic)
	return l
}

// FluidAcceleration returns the configured ambient fluid acceleration.
func (c *Config) FluidAcceleration() r3.Vec {
	if len(c.VirtualMass.FluidAcceleration) != 3 {
		return r3.Vec{}
	}
	a := c.VirtualMass.FluidAcceleration
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

// ParseAssignment maps an assignment name to its strategy.
func ParseAssignment(s string) (domain.AssignStrategy, error) {
	switch s {
	case "block":
		return domain.BlockAssign, nil
	case "round-robin":
		return domain.RoundRobinAssign, nil
	case "morton":
		return domain.MortonAssign, nil
	}
	return 0, fmt.Errorf("domain: unknown assignment %q", s)
}

// ParseBoundary maps a boundary name to its mode.
func ParseBoundary(s string) (coupling.BoundaryMode, error) {
	switch s {
	case "simple":
		return coupling.SimpleBounceBack, nil
	case "interpolated":
		return coupling.InterpolatedBounceBack, nil
	}
	return 0, fmt.Errorf("coupling: unknown boundary %q", s)
}

// ParseReconstructor maps a reconstructor name to its mode.
func ParseReconstructor(s string) (coupling.ReconstructMode, error) {
	switch s {
	case "equilibrium":
		return coupling.ReconstructEquilibrium, nil
	case "eq-noneq":
		return coupling.ReconstructEqNonEq, nil
	case "grad":
		return coupling.ReconstructGrad, nil
	}
	return 0, fmt.Errorf("coupling: unknown reconstructor %q", s)
}

// ParseAveraging maps an averaging name to its mode.
func ParseAveraging(s string) (correction.AveragingMode, error) {
	switch s {
	case "none":
		return correction.AverageNone, nil
	case "euler":
		return correction.AverageEuler, nil
	case "second-order":
		return correction.AverageSecondOrder, nil
	}
	return 0, fmt.Errorf("coupling: unknown averaging %q", s)
}
