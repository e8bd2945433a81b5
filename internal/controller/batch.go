package controller

import "time"

// BatchTotals is the running record for the batch currently in progress
// (spec §3). Gross/net barrels live in the Tag Store (VT_GROSS_BBL,
// VT_NET_BBL) since Flow Measurement owns their accumulation; this
// struct tracks the metadata the store doesn't: batch boundaries and the
// running temperature average used for the closed-batch report.
type BatchTotals struct {
	StartedAt    time.Time
	tempSum      float64
	tempSamples  int
}

// NewBatch starts a fresh batch clock.
func NewBatch(start time.Time) *BatchTotals {
	return &BatchTotals{StartedAt: start}
}

// ObserveTemp folds one scan's meter temperature into the batch average.
func (b *BatchTotals) ObserveTemp(tempF float64) {
	b.tempSum += tempF
	b.tempSamples++
}

// AverageTemp returns the batch's running average observed temperature.
func (b *BatchTotals) AverageTemp() float64 {
	if b.tempSamples == 0 {
		return 0
	}
	return b.tempSum / float64(b.tempSamples)
}

// BatchReport is the persisted record written on CLOSE_BATCH (spec §6).
type BatchReport struct {
	ClosedAt    time.Time
	StartedAt   time.Time
	GrossBBL    float64
	NetBBL      float64
	DivertedBBL float64
	AvgTempF    float64
	MeterFactor float64
	SampleVolML float64
}
