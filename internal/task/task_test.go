package task_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/nmpc/internal/config"
	"github.com/san-kum/nmpc/internal/dynamo"
	"github.com/san-kum/nmpc/internal/mpc"
	"github.com/san-kum/nmpc/internal/task"
)

const tick = 10 * time.Millisecond

var _ = Describe("Task", func() {
	var tk *task.Task[sample]

	BeforeEach(func() {
		var err error
		tk, err = task.New[sample](controllerConfig(), resolver, passThrough)
		Expect(err).NotTo(HaveOccurred())
		tk.Start()
	})

	Describe("construction", func() {
		It("requires a config", func() {
			_, err := task.New[sample](nil, resolver, passThrough)
			Expect(err).To(MatchError(dynamo.ErrConfiguration))
			Expect(err.Error()).To(ContainSubstring("task needs a config"))
		})

		It("passes resolver failures through", func() {
			boom := errors.New("unknown model")
			failing := task.ResolverFunc(func(*config.Controller) (mpc.Params, error) { return mpc.Params{}, boom })
			_, err := task.New[sample](controllerConfig(), failing, passThrough)
			Expect(err).To(MatchError(boom))
		})

		It("rejects a configuration without costs", func() {
			noCost := task.ResolverFunc(func(cfg *config.Controller) (mpc.Params, error) {
				p, err := resolver(cfg)
				p.StateCost = nil
				return p, err
			})
			_, err := task.New[sample](controllerConfig(), noCost, passThrough)
			Expect(err).To(MatchError(dynamo.ErrConfiguration))
		})
	})

	It("emits an empty output without a measurement", func() {
		out, err := tk.Process(nil, tick)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Empty()).To(BeTrue())
		Expect(tk.FirstRun()).To(BeTrue())
		Expect(tk.Controller().Elapsed()).To(BeZero())
	})

	It("seeds on the first measurement and then holds", func() {
		first, err := tk.Process(at(0, 0), tick)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Values).To(HaveLen(2))
		Expect(tk.FirstRun()).To(BeFalse())
		Expect(tk.Controller().Elapsed()).To(BeZero())

		held, err := tk.Process(at(0.1, 0.1), tick)
		Expect(err).NotTo(HaveOccurred())
		Expect(held.Values).To(Equal(first.Values))
		Expect(tk.Controller().Error()).To(Equal(dynamo.State{1, 1}))
	})

	It("clears the output when measurements stop arriving", func() {
		_, err := tk.Process(at(0, 0), tick)
		Expect(err).NotTo(HaveOccurred())
		out, err := tk.Process(nil, tick)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Empty()).To(BeTrue())
		Expect(tk.Controller().LastOutput()).To(HaveLen(2))
	})

	It("surfaces a converter of the wrong length and keeps the last output", func() {
		first, err := tk.Process(at(0, 0), tick)
		Expect(err).NotTo(HaveOccurred())

		out, err := tk.Process(at(0, 0, 0), 5*time.Second)
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		Expect(out.Values).To(Equal(first.Values))
		Expect(tk.Controller().LastOutput()).To(Equal(dynamo.Control(first.Values)))
	})

	It("stays unseeded when the first measurement is rejected", func() {
		out, err := tk.Process(at(1), tick)
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
		Expect(out.Empty()).To(BeTrue())
		Expect(tk.FirstRun()).To(BeTrue())
	})

	It("reseeds after Stop", func() {
		_, err := tk.Process(at(0, 0), tick)
		Expect(err).NotTo(HaveOccurred())
		_, err = tk.Process(at(0.2, 0.2), tick)
		Expect(err).NotTo(HaveOccurred())

		tk.Stop()
		Expect(tk.FirstRun()).To(BeTrue())
		Expect(tk.Controller().Error()).To(Equal(dynamo.State{0, 0}))

		fresh, err := task.New[sample](controllerConfig(), resolver, passThrough)
		Expect(err).NotTo(HaveOccurred())

		a, err := tk.Process(at(0.5, 0.5), tick)
		Expect(err).NotTo(HaveOccurred())
		b, err := fresh.Process(at(0.5, 0.5), tick)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Values).To(Equal(b.Values))
	})

	It("keeps every output within the configured limits", func() {
		limits := controllerConfig().Limits()
		x := []float64{-5, 5}
		for i := 0; i < 100; i++ {
			out, err := tk.Process(at(x...), 35*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(limits.Contains(out.Values)).To(BeTrue())
			x[0] += 0.035 * out.Values[0]
			x[1] += 0.035 * out.Values[1]
		}
	})
})
