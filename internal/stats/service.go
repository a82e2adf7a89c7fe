package stats

import (
	"context"
	"errors"

	"github.com/bloodbank/bloodbank-backend/internal/donations"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"golang.org/x/sync/errgroup"
)

const recentDonationCount = 5

// Dashboard is the aggregate shown on the staff landing page.
type Dashboard struct {
	TotalUnits      int                  `json:"totalUnits"`
	RareUnits       int                  `json:"rareUnits"`
	TypesTracked    int                  `json:"typesTracked"`
	Inventory       []ledger.Balance     `json:"inventory"`
	RecentDonations []donations.Donation `json:"recentDonations"`
}

type Service interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
}

type service struct {
	ledger    ledger.Service
	donations donations.Service
}

func NewService(ledgerSvc ledger.Service, donationsSvc donations.Service) (Service, error) {
	if ledgerSvc == nil {
		return nil, errors.New("ledger service is required")
	}
	if donationsSvc == nil {
		return nil, errors.New("donations service is required")
	}
	return &service{ledger: ledgerSvc, donations: donationsSvc}, nil
}

// Dashboard loads balances and recent donations concurrently. Rare units are
// the Rh-negative types.
func (s *service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		balances []ledger.Balance
		recent   []donations.Donation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = s.ledger.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.donations.Recent(gctx, recentDonationCount)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Dashboard{
		TypesTracked:    len(balances),
		Inventory:       balances,
		RecentDonations: recent,
	}
	for _, b := range balances {
		out.TotalUnits += b.Units
		if b.BloodType.IsRhNegative() {
			out.RareUnits += b.Units
		}
	}
	return out, nil
}
