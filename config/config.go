// Package config loads the person tracker configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/milosgajdos/go-perceive/grid"
	"github.com/milosgajdos/go-perceive/motion"
	"github.com/milosgajdos/go-perceive/optimizer"
	"github.com/milosgajdos/go-perceive/particle"
	"github.com/milosgajdos/go-perceive/person"
	"github.com/milosgajdos/go-perceive/rand"
	"github.com/milosgajdos/go-perceive/sensor"
)

// maxFileSize is the maximum config file size in bytes
const maxFileSize = 1 * 1024 * 1024

// Config is the tracker configuration.
// Omitted fields fall back to defaults returned by the Get* methods.
type Config struct {
	// Estimator params
	StepDuration  *float64 `json:"step_duration,omitempty"`
	NumParticles  *int     `json:"num_particles,omitempty"`
	SigmaPerson   *float64 `json:"sigma_person,omitempty"`
	NumRobots     *int     `json:"num_robots,omitempty"`
	GlobalFrameID *string  `json:"global_frame_id,omitempty"`

	// Sensor model params (required)
	RFIDMapResolution *float64 `json:"rfid_map_resolution,omitempty"`
	RFIDProbMap       *string  `json:"rfid_prob_map,omitempty"` // prefix of <prefix>_pos.png and <prefix>_neg.png

	// Map and filter params
	Map               *string  `json:"map,omitempty"` // map_server YAML file
	Seed              *uint64  `json:"seed,omitempty"`
	MinLikelihood     *float64 `json:"min_likelihood,omitempty"`
	EntropyResolution *float64 `json:"entropy_resolution,omitempty"`
	MissingReading    *string  `json:"missing_reading,omitempty"` // "negative" or "skip"
	RandomFraction    *float64 `json:"random_fraction,omitempty"`
	Regularize        *bool    `json:"regularize,omitempty"`
	Resampling        *string  `json:"resampling,omitempty"` // "systematic" or "multinomial"

	// Optimizer params
	MaxLinearVelocity  *float64       `json:"max_linear_velocity,omitempty"`
	MaxAngularVelocity *float64       `json:"max_angular_velocity,omitempty"`
	LinearSteps        *int           `json:"linear_steps,omitempty"`
	AngularSteps       *int           `json:"angular_steps,omitempty"`
	Lookahead          *float64       `json:"lookahead,omitempty"`
	LookaheadSamples   *int           `json:"lookahead_samples,omitempty"`
	Workers            *int           `json:"workers,omitempty"`
	Motion             *motion.Params `json:"motion,omitempty"`

	// Diagnostics
	RecordDB *string `json:"record_db,omitempty"`
}

// Load loads Config from a JSON file and validates it.
// The file must have .json extension and must not exceed 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
// Sensor model params are required.
func (c *Config) Validate() error {
	if c.RFIDMapResolution == nil {
		return fmt.Errorf("rfid_map_resolution is required")
	}
	if !(*c.RFIDMapResolution > 0) {
		return fmt.Errorf("rfid_map_resolution must be positive, got %f", *c.RFIDMapResolution)
	}

	if c.RFIDProbMap == nil || *c.RFIDProbMap == "" {
		return fmt.Errorf("rfid_prob_map is required")
	}

	if c.StepDuration != nil && !(*c.StepDuration >= optimizer.MinStepDuration) {
		return fmt.Errorf("step_duration must be at least %g, got %g", optimizer.MinStepDuration, *c.StepDuration)
	}

	if c.NumParticles != nil && *c.NumParticles <= 0 {
		return fmt.Errorf("num_particles must be positive, got %d", *c.NumParticles)
	}

	if c.SigmaPerson != nil && !(*c.SigmaPerson >= 0) {
		return fmt.Errorf("sigma_person must be non-negative, got %f", *c.SigmaPerson)
	}

	if c.NumRobots != nil && *c.NumRobots <= 0 {
		return fmt.Errorf("num_robots must be positive, got %d", *c.NumRobots)
	}

	if c.MinLikelihood != nil && !(*c.MinLikelihood >= 0 && *c.MinLikelihood <= 1) {
		return fmt.Errorf("min_likelihood must be between 0 and 1, got %f", *c.MinLikelihood)
	}

	if c.EntropyResolution != nil && !(*c.EntropyResolution >= 0) {
		return fmt.Errorf("entropy_resolution must be non-negative, got %f", *c.EntropyResolution)
	}

	if c.MissingReading != nil {
		if _, err := optimizer.ParseMissingPolicy(*c.MissingReading); err != nil {
			return err
		}
	}

	if c.Resampling != nil {
		if _, err := particle.ParseResampling(*c.Resampling); err != nil {
			return err
		}
	}

	if c.RandomFraction != nil && !(*c.RandomFraction >= 0 && *c.RandomFraction <= 1) {
		return fmt.Errorf("random_fraction must be between 0 and 1, got %f", *c.RandomFraction)
	}

	if c.Lookahead != nil && !(*c.Lookahead >= 0) {
		return fmt.Errorf("lookahead must be non-negative, got %f", *c.Lookahead)
	}

	if c.LookaheadSamples != nil && *c.LookaheadSamples <= 0 {
		return fmt.Errorf("lookahead_samples must be positive, got %d", *c.LookaheadSamples)
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if _, err := optimizer.Grid(c.GetMaxLinearVelocity(), c.GetMaxAngularVelocity(), c.GetLinearSteps(), c.GetAngularSteps()); err != nil {
		return err
	}

	if c.Motion != nil {
		if err := c.Motion.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// GetStepDuration returns the step_duration value or the default.
func (c *Config) GetStepDuration() float64 {
	if c.StepDuration == nil {
		return optimizer.DefaultStepDuration
	}
	return *c.StepDuration
}

// GetNumParticles returns the num_particles value or the default.
func (c *Config) GetNumParticles() int {
	if c.NumParticles == nil {
		return person.DefaultNumParticles
	}
	return *c.NumParticles
}

// GetSigmaPerson returns the sigma_person value or the default.
func (c *Config) GetSigmaPerson() float64 {
	if c.SigmaPerson == nil {
		return person.DefaultSigma
	}
	return *c.SigmaPerson
}

// GetNumRobots returns the num_robots value or the default.
func (c *Config) GetNumRobots() int {
	if c.NumRobots == nil {
		return 1
	}
	return *c.NumRobots
}

// GetGlobalFrameID returns the global_frame_id value or the default.
func (c *Config) GetGlobalFrameID() string {
	if c.GlobalFrameID == nil || *c.GlobalFrameID == "" {
		return "map"
	}
	return *c.GlobalFrameID
}

// GetMap returns the map value or an empty string.
func (c *Config) GetMap() string {
	if c.Map == nil {
		return ""
	}
	return *c.Map
}

// GetSeed returns the seed value and true if it's set.
func (c *Config) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetMinLikelihood returns the min_likelihood value or the default.
func (c *Config) GetMinLikelihood() float64 {
	if c.MinLikelihood == nil {
		return sensor.DefaultMinProb
	}
	return *c.MinLikelihood
}

// GetEntropyResolution returns the entropy_resolution value or the default.
func (c *Config) GetEntropyResolution() float64 {
	if c.EntropyResolution == nil {
		return 0
	}
	return *c.EntropyResolution
}

// GetMissingReading returns the missing_reading policy or the default.
func (c *Config) GetMissingReading() optimizer.MissingPolicy {
	if c.MissingReading == nil {
		return optimizer.Negative
	}
	p, err := optimizer.ParseMissingPolicy(*c.MissingReading)
	if err != nil {
		return optimizer.Negative
	}
	return p
}

// GetResampling returns the resampling draw or the default.
func (c *Config) GetResampling() particle.Resampling {
	if c.Resampling == nil {
		return particle.Systematic
	}
	r, err := particle.ParseResampling(*c.Resampling)
	if err != nil {
		return particle.Systematic
	}
	return r
}

// GetRandomFraction returns the random_fraction value or the default.
func (c *Config) GetRandomFraction() float64 {
	if c.RandomFraction == nil {
		return 0
	}
	return *c.RandomFraction
}

// GetRegularize returns the regularize value or the default.
func (c *Config) GetRegularize() bool {
	if c.Regularize == nil {
		return false
	}
	return *c.Regularize
}

// GetMaxLinearVelocity returns the max_linear_velocity value or the default.
func (c *Config) GetMaxLinearVelocity() float64 {
	if c.MaxLinearVelocity == nil {
		return optimizer.DefaultMaxLinear
	}
	return *c.MaxLinearVelocity
}

// GetMaxAngularVelocity returns the max_angular_velocity value or the default.
func (c *Config) GetMaxAngularVelocity() float64 {
	if c.MaxAngularVelocity == nil {
		return optimizer.DefaultMaxAngular
	}
	return *c.MaxAngularVelocity
}

// GetLinearSteps returns the linear_steps value or the default.
func (c *Config) GetLinearSteps() int {
	if c.LinearSteps == nil {
		return optimizer.DefaultLinearSteps
	}
	return *c.LinearSteps
}

// GetAngularSteps returns the angular_steps value or the default.
func (c *Config) GetAngularSteps() int {
	if c.AngularSteps == nil {
		return optimizer.DefaultAngularSteps
	}
	return *c.AngularSteps
}

// GetLookahead returns the lookahead value or the step duration.
func (c *Config) GetLookahead() float64 {
	if c.Lookahead == nil || *c.Lookahead == 0 {
		return c.GetStepDuration()
	}
	return *c.Lookahead
}

// GetLookaheadSamples returns the lookahead_samples value or the default.
func (c *Config) GetLookaheadSamples() int {
	if c.LookaheadSamples == nil {
		return optimizer.DefaultLookaheadSamples
	}
	return *c.LookaheadSamples
}

// GetWorkers returns the workers value or the default.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetMotion returns the motion model params or zero noise.
func (c *Config) GetMotion() motion.Params {
	if c.Motion == nil {
		return motion.Params{}
	}
	return *c.Motion
}

// GetRecordDB returns the record_db value or an empty string.
func (c *Config) GetRecordDB() string {
	if c.RecordDB == nil {
		return ""
	}
	return *c.RecordDB
}

// Source returns the configured random source: seeded if seed is set, time seeded otherwise.
func (c *Config) Source() *rand.Source {
	if seed, ok := c.GetSeed(); ok {
		return rand.New(seed)
	}
	return rand.NewTime()
}

// Person returns person filter config for map m and likelihood field f.
func (c *Config) Person(m *grid.Map, f *sensor.Field, src *rand.Source, log logrus.FieldLogger) person.Config {
	return person.Config{
		Map:               m,
		Field:             f,
		NumParticles:      c.GetNumParticles(),
		Sigma:             c.GetSigmaPerson(),
		EntropyResolution: c.GetEntropyResolution(),
		RandomFraction:    c.GetRandomFraction(),
		Resampling:        c.GetResampling(),
		Src:               src,
		Logger:            log,
	}
}

// Optimizer returns optimizer config for person filter p and motion model m.
func (c *Config) Optimizer(p *person.Filter, m *motion.Model, src *rand.Source, log logrus.FieldLogger) optimizer.Config {
	return optimizer.Config{
		Person:           p,
		Motion:           m,
		NumRobots:        c.GetNumRobots(),
		StepDuration:     c.GetStepDuration(),
		Lookahead:        c.GetLookahead(),
		LookaheadSamples: c.GetLookaheadSamples(),
		MaxLinear:        c.GetMaxLinearVelocity(),
		MaxAngular:       c.GetMaxAngularVelocity(),
		LinearSteps:      c.GetLinearSteps(),
		AngularSteps:     c.GetAngularSteps(),
		Missing:          c.GetMissingReading(),
		Regularize:       c.GetRegularize(),
		Workers:          c.GetWorkers(),
		Src:              src,
		Logger:           log,
	}
}

// Field loads the sensor likelihood field.
// It returns ErrSensorModelLoad if the probability maps can not be loaded.
func (c *Config) Field() (*sensor.Field, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return sensor.Load(*c.RFIDProbMap, *c.RFIDMapResolution, c.GetMinLikelihood())
}
