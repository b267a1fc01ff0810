package mpc_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/nmpc/internal/constraints"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/mpc"
	"github.com/san-kum/nmpc/internal/solver"
)

const tick = 10 * time.Millisecond

func integrator(n int) dynamo.System {
	return mpc.DynamicsFunc(n, func(x dynamo.State, u dynamo.Control) dynamo.State {
		dx := make(dynamo.State, n)
		copy(dx, u)
		return dx
	})
}

func baseParams() mpc.Params {
	return mpc.Params{
		Setpoint:     dynamo.State{1, 1},
		OutputLimits: dynamo.Limits{{Low: -1, High: 1}, {Low: -1, High: 1}},
		SamplePeriod: 100 * time.Millisecond,
		Dynamics:     integrator(2),
		StateCost:    mpc.NewQuadratic([]float64{1, 1}, []float64{0.1, 0.1}, nil),
		Tolerance:    1e-3,
	}
}

type countingObserver struct {
	solves, holds, capped int
}

func (o *countingObserver) ObserveSolve(st solver.Status) {
	o.solves++
	if !st.Converged {
		o.capped++
	}
}

func (o *countingObserver) ObserveHold() { o.holds++ }

func withinLimits(u dynamo.Control, l dynamo.Limits) bool {
	return l.Contains(u)
}

var _ = Describe("Controller", func() {
	Describe("construction", func() {
		It("rejects a configuration without any cost", func() {
			p := baseParams()
			p.StateCost = nil
			_, err := mpc.New(p)
			Expect(err).To(MatchError(dynamo.ErrConfiguration))
		})

		It("accepts a terminal cost on its own", func() {
			p := baseParams()
			p.StateCost = nil
			p.TerminalCost = mpc.NewQuadratic(nil, nil, []float64{1, 1})
			_, err := mpc.New(p)
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("rejects invalid parameters",
			func(mutate func(*mpc.Params)) {
				p := baseParams()
				mutate(&p)
				_, err := mpc.New(p)
				Expect(err).To(MatchError(dynamo.ErrConfiguration))
			},
			Entry("empty setpoint", func(p *mpc.Params) { p.Setpoint = nil }),
			Entry("limit count", func(p *mpc.Params) { p.OutputLimits = p.OutputLimits[:1] }),
			Entry("inverted limit", func(p *mpc.Params) { p.OutputLimits[0] = dynamo.Bound{Low: 1, High: -1} }),
			Entry("zero sample period", func(p *mpc.Params) { p.SamplePeriod = 0 }),
			Entry("missing dynamics", func(p *mpc.Params) { p.Dynamics = nil }),
			Entry("dynamics dimension", func(p *mpc.Params) { p.Dynamics = integrator(3) }),
			Entry("zero tolerance", func(p *mpc.Params) { p.Tolerance = 0 }),
			Entry("negative horizon", func(p *mpc.Params) { p.Horizon = -1 }),
		)

		It("starts with an empty output and zero accumulator", func() {
			c, err := mpc.New(baseParams())
			Expect(err).NotTo(HaveOccurred())
			Expect(c.LastOutput()).To(BeEmpty())
			Expect(c.Elapsed()).To(BeZero())
			Expect(c.Problem().Dim()).To(Equal(2))
		})
	})

	Describe("sample-rate gate", Ordered, func() {
		var (
			c       *mpc.Controller
			obs     *countingObserver
			firstU  dynamo.Control
			limits  dynamo.Limits
			heldErr dynamo.State
		)

		BeforeAll(func() {
			obs = &countingObserver{}
			p := baseParams()
			p.Observer = obs
			limits = p.OutputLimits
			var err error
			c, err = mpc.New(p)
			Expect(err).NotTo(HaveOccurred())
		})

		It("solves on the first tick after seeding", func() {
			Expect(c.SeedMeasurement(dynamo.State{0, 0})).To(Succeed())
			Expect(c.Elapsed()).To(Equal(100 * time.Millisecond))

			u, err := c.Next(dynamo.State{0, 0}, tick)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(HaveLen(2))
			Expect(withinLimits(u, limits)).To(BeTrue())
			Expect(u[0]).To(BeNumerically(">", 0))
			Expect(u[1]).To(BeNumerically(">", 0))
			Expect(c.Elapsed()).To(BeZero())
			Expect(c.Error()).To(Equal(dynamo.State{1, 1}))
			Expect(obs.solves).To(Equal(1))
			firstU = u
			heldErr = c.Error()
		})

		It("holds the output below one sample period", func() {
			u, err := c.Next(dynamo.State{0.1, 0.1}, tick)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(Equal(firstU))
			Expect(c.Error()).To(Equal(heldErr))
			Expect(c.Elapsed()).To(Equal(tick))
			Expect(obs.holds).To(Equal(1))
		})

		It("re-solves once the accumulator reaches the sample period", func() {
			m := dynamo.State{0.3, 0.2}
			for i := 0; i < 8; i++ {
				u, err := c.Next(m, tick)
				Expect(err).NotTo(HaveOccurred())
				Expect(u).To(Equal(firstU))
			}
			Expect(c.Elapsed()).To(Equal(90 * time.Millisecond))
			Expect(obs.solves).To(Equal(1))

			u, err := c.Next(m, tick)
			Expect(err).NotTo(HaveOccurred())
			Expect(withinLimits(u, limits)).To(BeTrue())
			Expect(c.Error()).To(Equal(dynamo.State{1 - 0.3, 1 - 0.2}))
			Expect(c.Elapsed()).To(BeZero())
			Expect(obs.solves).To(Equal(2))
		})

		It("aborts a tick on a measurement of the wrong length", func() {
			before := c.LastOutput()
			elapsed := c.Elapsed()

			u, err := c.Next(dynamo.State{0, 0, 0}, 200*time.Millisecond)
			Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
			Expect(u).To(Equal(before))
			Expect(c.LastOutput()).To(Equal(before))
			Expect(c.Elapsed()).To(Equal(elapsed))
		})

		It("rejects a seed of the wrong length", func() {
			Expect(c.SeedMeasurement(dynamo.State{0})).To(MatchError(dynamo.ErrDimensionMismatch))
		})

		It("aborts a tick on a non-finite measurement", func() {
			before := c.LastOutput()
			elapsed := c.Elapsed()
			errVec := c.Error()

			for _, bad := range []dynamo.State{{math.NaN(), 0}, {0, math.Inf(-1)}} {
				u, err := c.Next(bad, 200*time.Millisecond)
				Expect(err).To(MatchError(dynamo.ErrInvalidState))
				Expect(u).To(Equal(before))
			}
			Expect(c.Elapsed()).To(Equal(elapsed))
			Expect(c.Error()).To(Equal(errVec))
			Expect(c.SeedMeasurement(dynamo.State{math.NaN(), 0})).To(MatchError(dynamo.ErrInvalidState))
			Expect(c.Error()).To(Equal(errVec))
		})
	})

	It("solves after seeding even when dt would overflow the accumulator", func() {
		c, err := mpc.New(baseParams())
		Expect(err).NotTo(HaveOccurred())
		Expect(c.SeedMeasurement(dynamo.State{0, 0})).To(Succeed())

		u, err := c.Next(dynamo.State{0, 0}, time.Duration(math.MaxInt64))
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(HaveLen(2))
		Expect(c.Elapsed()).To(BeZero())

		_, err = c.Next(dynamo.State{0, 0}, time.Duration(math.MaxInt64))
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Next(dynamo.State{0, 0}, time.Duration(math.MaxInt64))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Elapsed()).To(BeZero(), "every saturated tick is due and solves")
	})

	It("returns copies of the held output", func() {
		c, err := mpc.New(baseParams())
		Expect(err).NotTo(HaveOccurred())
		Expect(c.SeedMeasurement(dynamo.State{0, 0})).To(Succeed())
		u, err := c.Next(dynamo.State{0, 0}, tick)
		Expect(err).NotTo(HaveOccurred())
		want := u.Clone()
		u[0] = 42
		Expect(c.LastOutput()).To(Equal(want))
	})

	It("keeps every output inside the limits", func() {
		p := baseParams()
		p.OutputLimits = dynamo.Limits{{Low: -0.2, High: 0.2}, {Low: -0.05, High: 0.3}}
		p.Constraint = &constraints.Ball2{Radius: 0.25}
		c, err := mpc.New(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.SeedMeasurement(dynamo.State{-3, 4})).To(Succeed())

		x := dynamo.State{-3, 4}
		for i := 0; i < 200; i++ {
			u, err := c.Next(x, 25*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(withinLimits(u, p.OutputLimits)).To(BeTrue(), "tick %d: %v", i, u)
			x[0] += 0.025 * u[0]
			x[1] += 0.025*u[1] + 0.01
		}
	})

	It("returns the best iterate when the iteration cap is hit", func() {
		obs := &countingObserver{}
		p := baseParams()
		p.Tolerance = 1e-14
		p.MaxIterations = 1
		p.Observer = obs
		c, err := mpc.New(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.SeedMeasurement(dynamo.State{0, 0})).To(Succeed())

		u, err := c.Next(dynamo.State{0, 0}, tick)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Status().Converged).To(BeFalse())
		Expect(c.Status().Iterations).To(Equal(1))
		Expect(obs.capped).To(Equal(1))
		Expect(withinLimits(u, p.OutputLimits)).To(BeTrue())
	})

	It("reproduces a fresh controller after reset and seed", func() {
		run := func(c *mpc.Controller) {
			Expect(c.SeedMeasurement(dynamo.State{0, 0})).To(Succeed())
			for i := 0; i < 25; i++ {
				_, err := c.Next(dynamo.State{0.02 * float64(i), -0.01 * float64(i)}, 20*time.Millisecond)
				Expect(err).NotTo(HaveOccurred())
			}
		}
		used, err := mpc.New(baseParams())
		Expect(err).NotTo(HaveOccurred())
		run(used)
		used.Reset()

		fresh, err := mpc.New(baseParams())
		Expect(err).NotTo(HaveOccurred())

		m := dynamo.State{0.4, -0.3}
		Expect(used.SeedMeasurement(m)).To(Succeed())
		Expect(fresh.SeedMeasurement(m)).To(Succeed())
		for i := 0; i < 12; i++ {
			a, errA := used.Next(m, 30*time.Millisecond)
			b, errB := fresh.Next(m, 30*time.Millisecond)
			Expect(errA).NotTo(HaveOccurred())
			Expect(errB).NotTo(HaveOccurred())
			Expect(a).To(Equal(b))
			m[0] += 0.01
		}
	})

	Describe("state snapshots", func() {
		sequence := func(i int) (dynamo.State, time.Duration) {
			return dynamo.State{0.05 * float64(i%7), 0.5 - 0.03*float64(i%5)}, time.Duration(15+5*(i%4)) * time.Millisecond
		}

		It("continues identically after a round trip", func() {
			orig, err := mpc.New(baseParams())
			Expect(err).NotTo(HaveOccurred())
			Expect(orig.SeedMeasurement(dynamo.State{0, 0})).To(Succeed())
			for i := 0; i < 17; i++ {
				m, dt := sequence(i)
				_, err := orig.Next(m, dt)
				Expect(err).NotTo(HaveOccurred())
			}

			restored, err := mpc.New(baseParams())
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.UnmarshalState(orig.MarshalState())).To(Succeed())
			Expect(restored.Elapsed()).To(Equal(orig.Elapsed()))
			Expect(restored.LastOutput()).To(Equal(orig.LastOutput()))

			for i := 17; i < 60; i++ {
				m, dt := sequence(i)
				a, errA := orig.Next(m, dt)
				b, errB := restored.Next(m, dt)
				Expect(errA).NotTo(HaveOccurred())
				Expect(errB).NotTo(HaveOccurred())
				Expect(b).To(Equal(a), "tick %d", i)
			}
		})

		It("keeps an empty output empty", func() {
			orig, err := mpc.New(baseParams())
			Expect(err).NotTo(HaveOccurred())
			restored, err := mpc.New(baseParams())
			Expect(err).NotTo(HaveOccurred())
			Expect(restored.UnmarshalState(orig.MarshalState())).To(Succeed())
			Expect(restored.LastOutput()).To(BeEmpty())
		})

		DescribeTable("rejects snapshots that do not fit",
			func(mutate func(*mpc.Snapshot)) {
				c, err := mpc.New(baseParams())
				Expect(err).NotTo(HaveOccurred())
				s := c.MarshalState()
				mutate(&s)
				Expect(c.UnmarshalState(s)).To(MatchError(dynamo.ErrSerialization))
			},
			Entry("short iterate", func(s *mpc.Snapshot) { s.Cache.Iterate = []float64{0} }),
			Entry("long error", func(s *mpc.Snapshot) { s.Error = []float64{0, 0, 0} }),
			Entry("short output", func(s *mpc.Snapshot) { s.LastOutput = []float64{1} }),
			Entry("negative elapsed", func(s *mpc.Snapshot) { s.Elapsed = -time.Second }),
		)
	})
})
