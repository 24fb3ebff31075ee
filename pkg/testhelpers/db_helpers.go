package testhelpers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"soundwork/pkg/db"
	"soundwork/pkg/ledger"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// OpenTestPool connects to DATABASE_URL_FOR_TEST and applies the schema. The
// test is skipped when the variable is unset.
func OpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping postgres tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, db.ApplySchema(ctx, pool, ""))

	t.Cleanup(pool.Close)
	return pool
}

// ResetTables empties every table the service owns.
func ResetTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), "TRUNCATE TABLE ledger_events, accounts")
	require.NoError(t, err)
}

// Address returns a distinct valid address for n.
func Address(n int64) ledger.Address {
	return ledger.MustParseAddress(fmt.Sprintf("0x%040x", n))
}

// NewAddress returns an address not handed out before in this test binary.
func NewAddress() ledger.Address {
	return Address(1_000_000 + nextSuffix())
}

// CreateTestAccount inserts an account row with a fresh address and email and
// returns the address.
func CreateTestAccount(t *testing.T, pool *pgxpool.Pool) ledger.Address {
	t.Helper()

	addr := NewAddress()
	name := fmt.Sprintf("test-account-%d", nextSuffix())
	email := fmt.Sprintf("%s@example.com", name)

	_, err := pool.Exec(context.Background(),
		"INSERT INTO accounts (address, name, email) VALUES ($1, $2, $3)", addr.String(), name, email)
	require.NoError(t, err)
	return addr
}
