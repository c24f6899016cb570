package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResultLabels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&inventory.OutOfStockError{VariantID: "v", Requested: 2, Available: 1}, "out_of_stock"},
		{fmt.Errorf("x: %w", inventory.ErrInvalidState), "invalid_state"},
		{inventory.ErrInsufficientBatches, "insufficient_batches"},
		{inventory.ErrInvalidInput, "invalid_input"},
		{errors.New("other"), "error"},
	}

	for _, tt := range tests {
		if got := result(tt.err); got != tt.want {
			t.Errorf("result(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Hold(nil)
	m.Hold(nil)
	m.Hold(inventory.ErrOutOfStock)
	m.UnitsReceived(7)
	m.CostOfGoods(17)

	if got := testutil.ToFloat64(m.holds.WithLabelValues("ok")); got != 2 {
		t.Errorf("Expected 2 ok holds, got %v", got)
	}
	if got := testutil.ToFloat64(m.holds.WithLabelValues("out_of_stock")); got != 1 {
		t.Errorf("Expected 1 out of stock hold, got %v", got)
	}
	if got := testutil.ToFloat64(m.unitsIn); got != 7 {
		t.Errorf("Expected 7 units received, got %v", got)
	}
	if got := testutil.ToFloat64(m.costOfGoods); got != 17 {
		t.Errorf("Expected cost of goods 17, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Hold(nil)
	m.Mutation("reserve", nil)
	m.Transition("committed")
	m.Swept("expired")
	m.SweepDuration(0.1)
	m.CostOfGoods(1)
	m.UnitsReceived(1)
}
