package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/motion"
	"github.com/milosgajdos/go-perceive/optimizer"
	"github.com/milosgajdos/go-perceive/particle"
	"github.com/milosgajdos/go-perceive/person"
	"github.com/milosgajdos/go-perceive/sensor"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoadDefaults(t *testing.T) {
	assert := assert.New(t)

	path := writeConfig(t, "tracker.json", `{"rfid_map_resolution": 0.1, "rfid_prob_map": "maps/rfid"}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(0.2, cfg.GetStepDuration())
	assert.Equal(5000, cfg.GetNumParticles())
	assert.Equal(0.05, cfg.GetSigmaPerson())
	assert.Equal(1, cfg.GetNumRobots())
	assert.Equal("map", cfg.GetGlobalFrameID())
	assert.Equal("", cfg.GetMap())
	_, ok := cfg.GetSeed()
	assert.False(ok)
	assert.Equal(sensor.DefaultMinProb, cfg.GetMinLikelihood())
	assert.Equal(0.0, cfg.GetEntropyResolution())
	assert.Equal(optimizer.Negative, cfg.GetMissingReading())
	assert.Equal(0.0, cfg.GetRandomFraction())
	assert.False(cfg.GetRegularize())
	assert.Equal(particle.Systematic, cfg.GetResampling())
	assert.Equal(0.5, cfg.GetMaxLinearVelocity())
	assert.Equal(1.0, cfg.GetMaxAngularVelocity())
	assert.Equal(3, cfg.GetLinearSteps())
	assert.Equal(5, cfg.GetAngularSteps())
	assert.Equal(0.2, cfg.GetLookahead())
	assert.Equal(20, cfg.GetLookaheadSamples())
	assert.Equal(0, cfg.GetWorkers())
	assert.Equal(motion.Params{}, cfg.GetMotion())
	assert.Equal("", cfg.GetRecordDB())
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	path := writeConfig(t, "tracker.json", `{
		"step_duration": 0.5,
		"num_particles": 100,
		"sigma_person": 0.1,
		"num_robots": 2,
		"global_frame_id": "world",
		"rfid_map_resolution": 0.05,
		"rfid_prob_map": "maps/rfid",
		"map": "maps/lab.yaml",
		"seed": 42,
		"min_likelihood": 0.001,
		"entropy_resolution": 0.25,
		"missing_reading": "skip",
		"random_fraction": 0.05,
		"regularize": true,
		"resampling": "multinomial",
		"max_linear_velocity": 0.3,
		"max_angular_velocity": 0.8,
		"linear_steps": 2,
		"angular_steps": 3,
		"lookahead": 1.0,
		"lookahead_samples": 10,
		"workers": 4,
		"motion": {"alpha_v": 0.1, "alpha_vxy": 0.2, "alpha_vw": 0.3, "alpha_w": 0.4, "alpha_wv": 0.5, "alpha_vg": 0.6, "alpha_wg": 0.7},
		"record_db": "runs.db"
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(0.5, cfg.GetStepDuration())
	assert.Equal(100, cfg.GetNumParticles())
	assert.Equal(0.1, cfg.GetSigmaPerson())
	assert.Equal(2, cfg.GetNumRobots())
	assert.Equal("world", cfg.GetGlobalFrameID())
	assert.Equal("maps/lab.yaml", cfg.GetMap())
	seed, ok := cfg.GetSeed()
	assert.True(ok)
	assert.Equal(uint64(42), seed)
	assert.Equal(uint64(42), cfg.Source().Seed())
	assert.Equal(0.001, cfg.GetMinLikelihood())
	assert.Equal(0.25, cfg.GetEntropyResolution())
	assert.Equal(optimizer.Skip, cfg.GetMissingReading())
	assert.Equal(0.05, cfg.GetRandomFraction())
	assert.True(cfg.GetRegularize())
	assert.Equal(particle.Multinomial, cfg.GetResampling())
	assert.Equal(1.0, cfg.GetLookahead())
	assert.Equal(10, cfg.GetLookaheadSamples())
	assert.Equal(4, cfg.GetWorkers())
	assert.Equal("runs.db", cfg.GetRecordDB())

	exp := motion.Params{AlphaV: 0.1, AlphaVXY: 0.2, AlphaVW: 0.3, AlphaW: 0.4, AlphaWV: 0.5, AlphaVG: 0.6, AlphaWG: 0.7}
	if diff := cmp.Diff(exp, cfg.GetMotion()); diff != "" {
		t.Errorf("unexpected motion params (-want +got):\n%s", diff)
	}

	src := cfg.Source()
	pc := cfg.Person(nil, nil, src, nil)
	assert.Equal(person.Config{
		NumParticles:      100,
		Sigma:             0.1,
		EntropyResolution: 0.25,
		RandomFraction:    0.05,
		Resampling:        particle.Multinomial,
		Src:               src,
	}, pc)

	oc := cfg.Optimizer(nil, nil, src, nil)
	assert.Equal(2, oc.NumRobots)
	assert.Equal(0.5, oc.StepDuration)
	assert.Equal(1.0, oc.Lookahead)
	assert.Equal(10, oc.LookaheadSamples)
	assert.Equal(0.3, oc.MaxLinear)
	assert.Equal(0.8, oc.MaxAngular)
	assert.Equal(2, oc.LinearSteps)
	assert.Equal(3, oc.AngularSteps)
	assert.Equal(optimizer.Skip, oc.Missing)
	assert.Equal(4, oc.Workers)
	assert.True(oc.Regularize)
}

func TestLoadErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := Load(writeConfig(t, "tracker.yaml", `{}`))
	assert.ErrorContains(err, ".json")

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(err)

	_, err = Load(writeConfig(t, "tracker.json", `{`))
	assert.ErrorContains(err, "parse")

	_, err = Load(writeConfig(t, "tracker.json", strings.Repeat(" ", maxFileSize+1)))
	assert.ErrorContains(err, "too large")
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)

	required := `"rfid_map_resolution": 0.1, "rfid_prob_map": "rfid"`

	testCases := []struct {
		body string
		msg  string
	}{
		{`{"rfid_prob_map": "rfid"}`, "rfid_map_resolution is required"},
		{`{"rfid_map_resolution": 0, "rfid_prob_map": "rfid"}`, "rfid_map_resolution must be positive"},
		{`{"rfid_map_resolution": 0.1}`, "rfid_prob_map is required"},
		{`{"rfid_map_resolution": 0.1, "rfid_prob_map": ""}`, "rfid_prob_map is required"},
		{`{` + required + `, "step_duration": 0}`, "step_duration"},
		{`{` + required + `, "step_duration": 1e-10}`, "step_duration"},
		{`{` + required + `, "num_particles": 0}`, "num_particles"},
		{`{` + required + `, "sigma_person": -1}`, "sigma_person"},
		{`{` + required + `, "num_robots": 0}`, "num_robots"},
		{`{` + required + `, "min_likelihood": 2}`, "min_likelihood"},
		{`{` + required + `, "entropy_resolution": -1}`, "entropy_resolution"},
		{`{` + required + `, "missing_reading": "maybe"}`, "missing reading"},
		{`{` + required + `, "random_fraction": 1.5}`, "random_fraction"},
		{`{` + required + `, "resampling": "stratified"}`, "invalid resampling"},
		{`{` + required + `, "lookahead": -1}`, "lookahead"},
		{`{` + required + `, "lookahead_samples": 0}`, "lookahead_samples"},
		{`{` + required + `, "workers": -1}`, "workers"},
		{`{` + required + `, "max_linear_velocity": -1}`, "candidate grid"},
		{`{` + required + `, "motion": {"alpha_v": -1}}`, "alpha_v"},
	}

	for _, tc := range testCases {
		_, err := Load(writeConfig(t, "tracker.json", tc.body))
		assert.ErrorContains(err, tc.msg, tc.body)
	}
}

func TestField(t *testing.T) {
	assert := assert.New(t)

	cfg := &Config{}
	_, err := cfg.Field()
	assert.Error(err)

	res, prefix := 0.1, filepath.Join(t.TempDir(), "rfid")
	cfg = &Config{RFIDMapResolution: &res, RFIDProbMap: &prefix}
	_, err = cfg.Field()
	assert.ErrorIs(err, perceive.ErrSensorModelLoad)
}
