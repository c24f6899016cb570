package metrics

import (
	"errors"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stock_ledger"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	mutations   *prometheus.CounterVec
	holds       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
	sweepTime   prometheus.Histogram
	costOfGoods prometheus.Counter
	unitsIn     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Ledger mutations by movement type and outcome.",
		}, []string{"type", "result"}),
		holds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_total",
			Help:      "Hold requests by outcome.",
		}, []string{"result"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservations reaching a terminal state.",
		}, []string{"state"}),
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_reservations_total",
			Help:      "Reservations handled by the expiry sweep by outcome.",
		}, []string{"result"}),
		sweepTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiry sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		costOfGoods: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_of_goods_total",
			Help:      "Sum of FIFO cost allocated to committed holds.",
		}),
		unitsIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_units_total",
			Help:      "Units received through purchase orders.",
		}),
	}
}

func (m *Metrics) Mutation(movementType string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(movementType, result(err)).Inc()
}

func (m *Metrics) Hold(err error) {
	if m == nil {
		return
	}
	m.holds.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) Swept(outcome string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepTime.Observe(seconds)
}

func (m *Metrics) CostOfGoods(amount float64) {
	if m == nil {
		return
	}
	m.costOfGoods.Add(amount)
}

func (m *Metrics) UnitsReceived(n int64) {
	if m == nil {
		return
	}
	m.unitsIn.Add(float64(n))
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, inventory.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, inventory.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, inventory.ErrInsufficientBatches):
		return "insufficient_batches"
	case errors.Is(err, inventory.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
