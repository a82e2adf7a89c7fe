package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/bloodbank/bloodbank-backend/pkg/db/dbtest"
	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func setUnits(t *testing.T, db *gorm.DB, levels map[enums.BloodType]int) {
	t.Helper()
	for bt, units := range levels {
		require.NoError(t, db.Model(&models.InventoryRow{}).Where("blood_type = ?", bt).Update("units", units).Error)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	setUnits(t, db, map[enums.BloodType]int{enums.BloodTypeAPos: 4})

	require.NoError(t, svc.Seed(ctx))
	require.NoError(t, svc.Seed(ctx))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 8)
	assert.Equal(t, 4, snap[enums.BloodTypeAPos], "seeding must not reset balances")
}

func TestListAscendingByType(t *testing.T) {
	svc, _ := newTestService(t)
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 8)

	got := make([]enums.BloodType, 0, len(list))
	for _, b := range list {
		got = append(got, b.BloodType)
	}
	assert.Equal(t, []enums.BloodType{"A+", "A-", "AB+", "AB-", "B+", "B-", "O+", "O-"}, got)
}

func TestAddOnlyTouchesItsType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, enums.BloodTypeAPos, 1))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	for bt, units := range snap {
		if bt == enums.BloodTypeAPos {
			assert.Equal(t, 1, units)
			continue
		}
		assert.Zero(t, units, bt.String())
	}
}

func TestWithdrawExact(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	setUnits(t, db, map[enums.BloodType]int{enums.BloodTypeBPos: 5, enums.BloodTypeONeg: 2})

	require.NoError(t, svc.Withdraw(ctx, enums.BloodTypeBPos, 3))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap[enums.BloodTypeBPos])
	assert.Equal(t, 2, snap[enums.BloodTypeONeg])
}

func TestWithdrawInsufficientLeavesBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	setUnits(t, db, map[enums.BloodType]int{enums.BloodTypeAPos: 2})

	err := svc.Withdraw(ctx, enums.BloodTypeAPos, 3)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap[enums.BloodTypeAPos])
}

func TestWithdrawValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		bt    enums.BloodType
		units int
	}{
		{enums.BloodTypeAPos, 0},
		{enums.BloodTypeAPos, -2},
		{"Z+", 1},
	} {
		err := svc.Withdraw(ctx, tc.bt, tc.units)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%v", tc)
	}
}

func TestDrain(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	setUnits(t, db, map[enums.BloodType]int{enums.BloodTypeONeg: 5, enums.BloodTypeOPos: 7})

	issued, err := svc.Drain(ctx, enums.BloodTypeONeg)
	require.NoError(t, err)
	assert.Equal(t, 5, issued)

	again, err := svc.Drain(ctx, enums.BloodTypeONeg)
	require.NoError(t, err)
	assert.Zero(t, again)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap[enums.BloodTypeONeg])
	assert.Equal(t, 7, snap[enums.BloodTypeOPos])
}

func TestConcurrentWithdrawNeverOverdraws(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	setUnits(t, db, map[enums.BloodType]int{enums.BloodTypeOPos: 10})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Withdraw(ctx, enums.BloodTypeOPos, 3); err == nil {
				mu.Lock()
				granted += 3
				mu.Unlock()
			} else if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficient) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, granted)
	assert.Equal(t, 1, snap[enums.BloodTypeOPos])
}

func TestWithTxRollsBackIncrement(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.WithTx(tx).Add(ctx, enums.BloodTypeABNeg, 1); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap[enums.BloodTypeABNeg])
}

type fakeRepo struct {
	Repository
	row      models.InventoryRow
	casCalls int
}

func (f *fakeRepo) Get(context.Context, enums.BloodType) (*models.InventoryRow, error) {
	row := f.row
	return &row, nil
}

func (f *fakeRepo) CompareAndSet(context.Context, enums.BloodType, int, int) (bool, error) {
	f.casCalls++
	return false, nil
}

func TestDrainGivesUpUnderContention(t *testing.T) {
	repo := &fakeRepo{row: models.InventoryRow{BloodType: enums.BloodTypeONeg, Units: 3}}
	svc, err := NewService(repo)
	require.NoError(t, err)

	_, err = svc.Drain(context.Background(), enums.BloodTypeONeg)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, maxDrainAttempts, repo.casCalls)
}
