package cron

import (
	"context"
	"fmt"

	"github.com/bloodbank/bloodbank-backend/internal/ledger"
)

type balanceLister interface {
	List(ctx context.Context) ([]ledger.Balance, error)
}

type inventoryGauge interface {
	SetInventoryUnits(bloodType string, units int)
}

// NewInventoryGaugeJob republishes every balance so the gauge stays accurate
// even for types that have not moved since the process started.
func NewInventoryGaugeJob(balances balanceLister, gauge inventoryGauge) (Job, error) {
	if balances == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if gauge == nil {
		return nil, fmt.Errorf("gauge required")
	}
	return &inventoryGaugeJob{balances: balances, gauge: gauge}, nil
}

type inventoryGaugeJob struct {
	balances balanceLister
	gauge    inventoryGauge
}

func (j *inventoryGaugeJob) Name() string { return "inventory-gauge" }

func (j *inventoryGaugeJob) Run(ctx context.Context) error {
	rows, err := j.balances.List(ctx)
	if err != nil {
		return fmt.Errorf("list balances: %w", err)
	}
	for _, row := range rows {
		j.gauge.SetInventoryUnits(string(row.BloodType), row.Units)
	}
	return nil
}
