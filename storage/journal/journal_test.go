package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"stakevault/core/events"
	"stakevault/crypto"
)

func testAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

func TestAppendAndList(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	op := uuid.New()
	evts := []events.Event{
		events.StakeDeposited{Account: testAddress(1), Slot: 1, Amount: uint256.NewInt(10), NewBalance: uint256.NewInt(10), Timestamp: 100},
		events.StakeWithdrawn{Account: testAddress(1), Slot: 1, Amount: uint256.NewInt(9), Fee: uint256.NewInt(1), Forced: true, Timestamp: 200},
	}
	require.NoError(t, j.Append(ctx, op, evts))
	require.NoError(t, j.Append(ctx, uuid.New(), nil))

	all, err := j.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, events.TypeStakeDeposited, all[0].Type)
	require.Equal(t, op, all[1].OperationID)

	attrs, err := all[1].Decoded()
	require.NoError(t, err)
	require.Equal(t, "true", attrs["forced"])
	require.Equal(t, "1", attrs["fee"])

	withdrawals, err := j.List(ctx, Filter{Type: events.TypeStakeWithdrawn})
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)

	later, err := j.List(ctx, Filter{Since: 150})
	require.NoError(t, err)
	require.Len(t, later, 1)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestAppendHookFailureRollsBack(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	ctx := context.Background()
	evt := events.StakeWithdrawalRequested{Account: testAddress(2), Slot: 1, Timestamp: 100}
	flushErr := errors.New("flush failed")
	err = j.Append(ctx, uuid.New(), []events.Event{evt}, func() error { return flushErr })
	require.ErrorIs(t, err, flushErr)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	var calls int
	hook := func() error { calls++; return nil }
	require.NoError(t, j.Append(ctx, uuid.New(), []events.Event{evt}, hook))
	require.NoError(t, j.Append(ctx, uuid.New(), nil, hook))
	require.Equal(t, 2, calls)
	n, err = j.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(context.Background(), uuid.New(), []events.Event{
		events.StakeWithdrawalRequested{Account: testAddress(2), Slot: 3, Timestamp: 42},
	}))
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	records, err := reopened.List(context.Background(), Filter{OperationID: uuid.Nil})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.EqualValues(t, 42, records[0].Timestamp)
}

func TestClosedJournal(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.Error(t, j.Append(context.Background(), uuid.New(), []events.Event{events.StakeWithdrawalRequested{}}))
}

func TestExportParquet(t *testing.T) {
	j, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	ctx := context.Background()
	require.NoError(t, j.Append(ctx, uuid.New(), []events.Event{
		events.StakeWithdrawalRequested{Account: testAddress(1), Slot: 1, Timestamp: 10},
		events.StakeWithdrawalRequested{Account: testAddress(1), Slot: 2, Timestamp: 11},
	}))

	path := filepath.Join(t.TempDir(), "events.parquet")
	n, err := j.ExportParquet(ctx, path, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.EqualValues(t, 2, pr.GetNumRows())

	rows := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, events.TypeStakeWithdrawalRequested, rows[0].Type)
	require.EqualValues(t, 11, rows[1].Timestamp)
}
