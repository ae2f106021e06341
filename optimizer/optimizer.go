// Package optimizer implements active perception: it picks robot velocity commands
// which are expected to reduce the uncertainty of the person position estimate the most.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	perceive "github.com/milosgajdos/go-perceive"
	"github.com/milosgajdos/go-perceive/entropy"
	"github.com/milosgajdos/go-perceive/estimate"
	"github.com/milosgajdos/go-perceive/motion"
	"github.com/milosgajdos/go-perceive/person"
	"github.com/milosgajdos/go-perceive/rand"
)

const (
	// DefaultStepDuration is the default control period in seconds
	DefaultStepDuration = 0.2
	// MinStepDuration is the shortest control period in seconds Run can tick at
	MinStepDuration = 0.001
	// DefaultLookaheadSamples is the default number of simulated robot poses per candidate
	DefaultLookaheadSamples = 20
	// DefaultMaxLinear is the default maximum linear velocity of candidate commands
	DefaultMaxLinear = 0.5
	// DefaultMaxAngular is the default maximum angular velocity of candidate commands
	DefaultMaxAngular = 1.0
	// DefaultLinearSteps is the default number of linear velocity candidates
	DefaultLinearSteps = 3
	// DefaultAngularSteps is the default number of angular velocity candidates
	DefaultAngularSteps = 5
)

// tie is the tolerance within which two expected entropies are considered equal
const tie = 1e-9

// State is optimizer state
type State int

const (
	// Idle waits for the first robot pose
	Idle State = iota
	// Tracking tracks the person and issues commands
	Tracking
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MissingPolicy decides how a tick without a sensor reading is treated
type MissingPolicy int

const (
	// Negative treats a missing reading as a negative reading
	Negative MissingPolicy = iota
	// Skip ignores robots without a reading
	Skip
)

// ParseMissingPolicy parses "negative" or "skip".
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "negative":
		return Negative, nil
	case "skip":
		return Skip, nil
	default:
		return Negative, fmt.Errorf("invalid missing reading policy: %q", s)
	}
}

// String implements fmt.Stringer
func (p MissingPolicy) String() string {
	if p == Skip {
		return "skip"
	}
	return "negative"
}

// Config configures the optimizer.
type Config struct {
	// Person is the person belief filter
	Person *person.Filter
	// Initialized marks Person as already initialized; otherwise it's initialized
	// uniformly over the free space when tracking starts
	Initialized bool
	// Motion is the robot motion model
	Motion *motion.Model
	// NumRobots is the number of robots; robot 0 is the controlled robot
	NumRobots int
	// StepDuration is the control period in seconds
	StepDuration float64
	// Lookahead is the simulated duration of candidate commands; zero uses StepDuration
	Lookahead float64
	// LookaheadSamples is the number of robot poses simulated per candidate
	LookaheadSamples int
	// MaxLinear is the maximum linear velocity of the candidate grid
	MaxLinear float64
	// MaxAngular is the maximum angular velocity of the candidate grid
	MaxAngular float64
	// LinearSteps is the number of linear velocities in the candidate grid
	LinearSteps int
	// AngularSteps is the number of angular velocities in the candidate grid
	AngularSteps int
	// Candidates overrides the candidate grid when not empty
	Candidates []perceive.Velocity
	// Missing is the missing reading policy
	Missing MissingPolicy
	// Regularize perturbs the person particles after every resampling
	Regularize bool
	// Workers limits the number of concurrently evaluated candidates; zero uses GOMAXPROCS
	Workers int
	// Src is the random source; nil seeds a new source from the current time
	Src *rand.Source
	// Logger logs decisions; nil uses the standard logger
	Logger logrus.FieldLogger
}

// Score is the evaluation of a candidate command
type Score struct {
	// Command is the candidate velocity command
	Command perceive.Velocity `json:"command"`
	// Expected is the expected posterior entropy of the person belief
	Expected float64 `json:"expected"`
	// PTrue is the predicted probability of a positive reading
	PTrue float64 `json:"p_true"`
	// PFalse is the predicted probability of a negative reading
	PFalse float64 `json:"p_false"`
	// Robots are the simulated robot poses
	Robots []perceive.Pose `json:"-"`
}

// Decision is the outcome of a single tick
type Decision struct {
	// Tick is the tick sequence number
	Tick int
	// Time is when the decision was made
	Time time.Time
	// Command is the chosen velocity command
	Command perceive.Velocity
	// Expected is the expected posterior entropy of the chosen command
	Expected float64
	// Entropy is the entropy of the current person belief
	Entropy float64
	// EffectiveSize is the effective sample size of the person belief before resampling
	EffectiveSize float64
	// Observations are the observations the person belief was updated with
	Observations []person.Observation
	// Scores are the evaluated candidates ordered from best to worst
	Scores []Score
	// Belief is the current person belief
	Belief perceive.Cloud
	// Estimate is the person position estimate
	Estimate *estimate.Base
	// Predicted are the simulated robot poses for the chosen command
	Predicted []perceive.Pose
}

// robot latches inbound robot state
type robot struct {
	pose    latch[perceive.Pose]
	cloud   latch[[]perceive.Pose]
	vel     latch[perceive.Velocity]
	reading latch[bool]
}

// Optimizer is the active perception decision loop.
// Setters may be called concurrently with Tick, but Tick itself must be called from a single goroutine.
type Optimizer struct {
	person     *person.Filter
	init       bool
	motion     *motion.Model
	robots     []robot
	dt         float64
	lookahead  float64
	samples    int
	candidates []perceive.Velocity
	missing    MissingPolicy
	regularize bool
	workers    int
	src        *rand.Source
	log        logrus.FieldLogger
	state      State
	tick       int
}

// New creates new optimizer from c and returns it.
// It returns error if c is invalid.
func New(c Config) (*Optimizer, error) {
	if c.Person == nil {
		return nil, fmt.Errorf("invalid person filter: %v", c.Person)
	}

	if c.Motion == nil {
		return nil, fmt.Errorf("invalid motion model: %v", c.Motion)
	}

	if c.NumRobots == 0 {
		c.NumRobots = 1
	}
	if c.NumRobots < 0 {
		return nil, fmt.Errorf("invalid robot count: %d", c.NumRobots)
	}

	if c.StepDuration == 0 {
		c.StepDuration = DefaultStepDuration
	}
	if !(c.StepDuration >= MinStepDuration) {
		return nil, fmt.Errorf("invalid step duration: %g", c.StepDuration)
	}

	if c.Lookahead == 0 {
		c.Lookahead = c.StepDuration
	}
	if !(c.Lookahead > 0) {
		return nil, fmt.Errorf("invalid lookahead: %f", c.Lookahead)
	}

	if c.LookaheadSamples == 0 {
		c.LookaheadSamples = DefaultLookaheadSamples
	}
	if c.LookaheadSamples < 0 {
		return nil, fmt.Errorf("invalid lookahead samples: %d", c.LookaheadSamples)
	}

	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count: %d", c.Workers)
	}

	candidates := c.Candidates
	if len(candidates) == 0 {
		var err error
		candidates, err = Grid(c.MaxLinear, c.MaxAngular, c.LinearSteps, c.AngularSteps)
		if err != nil {
			return nil, err
		}
	}

	if c.Src == nil {
		c.Src = rand.NewTime()
	}

	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}

	return &Optimizer{
		person:     c.Person,
		init:       c.Initialized,
		motion:     c.Motion,
		robots:     make([]robot, c.NumRobots),
		dt:         c.StepDuration,
		lookahead:  c.Lookahead,
		samples:    c.LookaheadSamples,
		candidates: candidates,
		missing:    c.Missing,
		regularize: c.Regularize,
		workers:    c.Workers,
		src:        c.Src,
		log:        c.Logger,
	}, nil
}

// Grid returns candidate commands: forward velocities evenly spaced over [0, maxLinear]
// combined with angular velocities evenly spaced over [-maxAngular, maxAngular].
// Zero values use defaults. It returns error if any of the values is negative.
func Grid(maxLinear, maxAngular float64, linearSteps, angularSteps int) ([]perceive.Velocity, error) {
	if maxLinear == 0 {
		maxLinear = DefaultMaxLinear
	}
	if maxAngular == 0 {
		maxAngular = DefaultMaxAngular
	}
	if linearSteps == 0 {
		linearSteps = DefaultLinearSteps
	}
	if angularSteps == 0 {
		angularSteps = DefaultAngularSteps
	}

	if !(maxLinear > 0) || !(maxAngular > 0) || linearSteps < 0 || angularSteps < 0 {
		return nil, fmt.Errorf("invalid candidate grid: v=%f/%d w=%f/%d", maxLinear, linearSteps, maxAngular, angularSteps)
	}

	linear := space(0, maxLinear, linearSteps)
	angular := space(-maxAngular, maxAngular, angularSteps)

	grid := make([]perceive.Velocity, 0, len(linear)*len(angular))
	for _, v := range linear {
		for _, w := range angular {
			grid = append(grid, perceive.Velocity{X: v, W: w})
		}
	}

	return grid, nil
}

// space returns n values evenly spaced over [lo, hi]; a single value is the one closest to zero.
func space(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{math.Max(lo, math.Min(hi, 0))}
	}

	vals := make([]float64, n)
	for i := range vals {
		vals[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}

	return vals
}

// SetRobotPose latches the pose of robot i.
// It returns ErrIndexOutOfRange if there is no robot i.
func (o *Optimizer) SetRobotPose(i int, p perceive.Pose) error {
	r, err := o.robot(i)
	if err != nil {
		return err
	}
	r.pose.Store(p)

	return nil
}

// SetRobotCloud latches the pose belief of robot i.
// It returns ErrIndexOutOfRange if there is no robot i.
func (o *Optimizer) SetRobotCloud(i int, cloud []perceive.Pose) error {
	r, err := o.robot(i)
	if err != nil {
		return err
	}

	c := make([]perceive.Pose, len(cloud))
	copy(c, cloud)
	r.cloud.Store(c)

	return nil
}

// SetRobotVelocity latches the odometry velocity of robot i.
// It returns ErrIndexOutOfRange if there is no robot i.
func (o *Optimizer) SetRobotVelocity(i int, v perceive.Velocity) error {
	r, err := o.robot(i)
	if err != nil {
		return err
	}
	r.vel.Store(v)

	return nil
}

// SetReading latches a sensor reading of robot i. Readings that arrive between
// two ticks collapse to the latest one.
// It returns ErrIndexOutOfRange if there is no robot i.
func (o *Optimizer) SetReading(i int, reading bool) error {
	r, err := o.robot(i)
	if err != nil {
		return err
	}
	r.reading.Store(reading)

	return nil
}

func (o *Optimizer) robot(i int) (*robot, error) {
	if i < 0 || i >= len(o.robots) {
		return nil, errors.Wrapf(perceive.ErrIndexOutOfRange, "robot %d of %d", i, len(o.robots))
	}

	return &o.robots[i], nil
}

// State returns optimizer state.
func (o *Optimizer) State() State {
	return o.state
}

// Candidates returns candidate commands evaluated on the next tick:
// the candidate grid followed by the current velocity of the controlled robot
// if it's known and not in the grid.
func (o *Optimizer) Candidates() []perceive.Velocity {
	c := make([]perceive.Velocity, len(o.candidates), len(o.candidates)+1)
	copy(c, o.candidates)

	v, ok := o.robots[0].vel.Load()
	if !ok {
		return c
	}

	for _, g := range c {
		if g == v {
			return c
		}
	}

	return append(c, v)
}

// Tick runs one control period: it advances the person belief with the latched readings
// and picks the command with the lowest expected posterior entropy.
// It returns ErrNoRobotPose and stays Idle until the pose of the controlled robot is known.
func (o *Optimizer) Tick(ctx context.Context) (*Decision, error) {
	if _, ok := o.robots[0].pose.Load(); !ok {
		return nil, perceive.ErrNoRobotPose
	}

	if o.state == Idle {
		if !o.init {
			if err := o.person.InitUniform(); err != nil {
				return nil, errors.Wrap(err, "failed to initialize person belief")
			}
			o.init = true
		}
		o.state = Tracking
		o.log.WithField("particles", o.person.Len()).Info("tracking started")
	}

	obs := o.observations()

	o.person.Predict(o.dt)
	o.person.Update(obs...)
	ess := o.person.EffectiveSize()
	if err := o.person.Resample(); err != nil {
		return nil, err
	}
	if o.regularize {
		if err := o.person.Regularize(0); err != nil {
			return nil, errors.Wrap(err, "failed to regularize person belief")
		}
	}

	h, err := o.person.EntropyParticles()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute belief entropy")
	}

	scores, err := o.Evaluate(ctx, o.Candidates())
	if err != nil {
		return nil, err
	}

	est, err := o.person.Estimate()
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate person position")
	}

	o.tick++
	best := scores[0]
	d := &Decision{
		Tick:          o.tick,
		Time:          time.Now(),
		Command:       best.Command,
		Expected:      best.Expected,
		Entropy:       h,
		EffectiveSize: ess,
		Observations:  obs,
		Scores:        scores,
		Belief:        o.person.Cloud(),
		Estimate:      est,
		Predicted:     best.Robots,
	}

	o.log.WithFields(logrus.Fields{
		"tick":     d.Tick,
		"vx":       d.Command.X,
		"vy":       d.Command.Y,
		"w":        d.Command.W,
		"expected": d.Expected,
		"entropy":  d.Entropy,
		"ess":      d.EffectiveSize,
	}).Debug("command chosen")

	return d, nil
}

// observations collects one observation per robot with a known pose.
// Robots without a reading contribute a negative observation unless the policy is Skip.
func (o *Optimizer) observations() []person.Observation {
	obs := make([]person.Observation, 0, len(o.robots))
	for i := range o.robots {
		r := &o.robots[i]
		pose, ok := r.pose.Load()
		if !ok {
			continue
		}

		reading, ok := r.reading.Take()
		if !ok && o.missing == Skip {
			continue
		}

		cloud, _ := r.cloud.Load()
		obs = append(obs, person.Observation{
			Index:   i,
			Reading: reading,
			Robot:   pose,
			Cloud:   o.subsample(o.src, cloud),
		})
	}

	return obs
}

// subsample draws at most LookaheadSamples poses from cloud.
func (o *Optimizer) subsample(src *rand.Source, cloud []perceive.Pose) []perceive.Pose {
	if len(cloud) <= o.samples {
		return cloud
	}

	s := make([]perceive.Pose, o.samples)
	for i := range s {
		s[i] = cloud[src.Intn(len(cloud))]
	}

	return s
}

// Evaluate scores candidates against the current person belief and the latched pose of the
// controlled robot. The first score is the chosen command: the smallest command whose expected
// entropy is within 1e-9 of the lowest. The remaining scores are ordered by expected entropy.
// It returns ErrNoRobotPose if the pose of the controlled robot is not known.
func (o *Optimizer) Evaluate(ctx context.Context, candidates []perceive.Velocity) ([]Score, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates to evaluate")
	}

	pose, ok := o.robots[0].pose.Load()
	if !ok {
		return nil, perceive.ErrNoRobotPose
	}
	cloud, _ := o.robots[0].cloud.Load()

	belief := o.person.Cloud()
	res, origin := o.person.Resolution()
	field := o.person.Field()

	// uninformative candidates keep the current entropy
	h0, err := entropy.Histogram(belief, origin, res)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute belief entropy")
	}

	// sources are split upfront so the scores do not depend on scheduling
	srcs := make([]*rand.Source, len(candidates))
	for i := range srcs {
		srcs[i] = o.src.Split()
	}

	scores := make([]Score, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range candidates {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			src := srcs[i]
			cmd := candidates[i]

			var robots []perceive.Pose
			if start := o.subsample(src, cloud); len(start) > 0 {
				robots = o.motion.Propagate(src, cmd, start, o.lookahead)
			} else {
				robots = o.motion.Sample(src, cmd, pose, o.lookahead, o.samples)
			}

			n := belief.Len()
			wt := make([]float64, n)
			wf := make([]float64, n)
			pt, pf := 0.0, 0.0
			for k, p := range belief.Points {
				wt[k] = belief.Weights[k] * field.CloudLikelihood(p, robots, true)
				wf[k] = belief.Weights[k] * field.CloudLikelihood(p, robots, false)
				pt += wt[k]
				pf += wf[k]
			}

			expected := h0
			if pt+pf > 0 {
				ht, err := posterior(belief.Points, wt, pt, origin, res)
				if err != nil {
					return errors.Wrapf(err, "candidate %d", i)
				}
				hf, err := posterior(belief.Points, wf, pf, origin, res)
				if err != nil {
					return errors.Wrapf(err, "candidate %d", i)
				}
				expected = (pt*ht + pf*hf) / (pt + pf)
			}

			scores[i] = Score{
				Command:  cmd,
				Expected: expected,
				PTrue:    pt,
				PFalse:   pf,
				Robots:   robots,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rank(scores), nil
}

// rank moves the best score to the front and orders the rest by expected entropy.
// The best score is the smallest command among those within tie of the lowest expected entropy.
func rank(scores []Score) []Score {
	if len(scores) == 0 {
		return scores
	}

	low := scores[0].Expected
	for _, s := range scores[1:] {
		low = math.Min(low, s.Expected)
	}

	best := -1
	for i, s := range scores {
		if s.Expected > low+tie {
			continue
		}
		if best < 0 || s.Command.Norm() < scores[best].Command.Norm() {
			best = i
		}
	}

	ranked := make([]Score, 0, len(scores))
	ranked = append(ranked, scores[best])
	ranked = append(ranked, scores[:best]...)
	ranked = append(ranked, scores[best+1:]...)

	rest := ranked[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].Expected != rest[j].Expected {
			return rest[i].Expected < rest[j].Expected
		}
		return rest[i].Command.Norm() < rest[j].Command.Norm()
	})

	return ranked
}

// posterior returns entropy of the belief reweighted by w. Zero mass has no entropy.
func posterior(points []perceive.Point, w []float64, mass float64, origin perceive.Point, res float64) (float64, error) {
	if !(mass > 0) {
		return 0, nil
	}

	return entropy.Histogram(perceive.Cloud{Points: points, Weights: w}, origin, res)
}

// Run ticks every control period until ctx is done and sends the decisions to out.
// Ticks without a robot pose keep the optimizer Idle; other tick failures are logged.
// It returns the ctx error.
func (o *Optimizer) Run(ctx context.Context, out chan<- *Decision) error {
	ticker := time.NewTicker(time.Duration(o.dt * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		d, err := o.Tick(ctx)
		if err != nil {
			if errors.Is(err, perceive.ErrNoRobotPose) {
				o.log.Debug("waiting for robot pose")
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.log.WithError(err).Warn("tick failed")
			continue
		}

		select {
		case out <- d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
