package observability

import (
	"ripe/core/events"
)

// EventSink feeds committed credit events into the metrics set. It is
// installed next to the journal so only committed units of work count.
type EventSink struct {
	Metrics *CreditMetricsSet
}

// Emit implements events.Emitter.
func (s EventSink) Emit(evt events.Event) {
	if s.Metrics == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.CreditRepay:
		s.Metrics.RecordRepaid("repay", e.Amount)
	case events.CreditRedeem:
		s.Metrics.RecordRepaid("redemption", e.Repaid)
	case events.CreditLiquidate:
		s.Metrics.RecordRepaid("liquidation", e.Repaid)
	case events.DeleverageUser:
		s.Metrics.RecordRepaid("deleverage", e.Repaid)
	case events.AuctionBought:
		s.Metrics.RecordRepaid("auction", e.GreenPaid)
	}
}
