package accounts

import (
	"context"
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"soundwork/pkg/ledger"
)

var (
	alice = ledger.MustParseAddress("0x1111111111111111111111111111111111111111")
	bob   = ledger.MustParseAddress("0x2222222222222222222222222222222222222222")
)

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	args := m.Called(ctx, a)
	out, _ := args.Get(0).(Account)
	return out, args.Error(1)
}

func (m *mockAccountRepository) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	args := m.Called(ctx, a)
	out, _ := args.Get(0).(Account)
	return out, args.Error(1)
}

func (m *mockAccountRepository) DeleteAccount(ctx context.Context, addr ledger.Address) error {
	return m.Called(ctx, addr).Error(0)
}

func (m *mockAccountRepository) GetAccount(ctx context.Context, addr ledger.Address) (Account, error) {
	args := m.Called(ctx, addr)
	out, _ := args.Get(0).(Account)
	return out, args.Error(1)
}

func (m *mockAccountRepository) ListAccounts(ctx context.Context, limit, offset int) ([]Account, int64, error) {
	args := m.Called(ctx, limit, offset)
	out, _ := args.Get(0).([]Account)
	return out, args.Get(1).(int64), args.Error(2)
}

func TestAccountService_CreateAccount_Normalizes(t *testing.T) {
	repo := new(mockAccountRepository)
	svc := NewAccountService(repo)

	want := Account{Address: alice, Name: "Alice", Email: "alice@example.com", Notify: true}
	repo.On("CreateAccount", mock.Anything, want).Return(want, nil)

	got, err := svc.CreateAccount(context.Background(), alice, "  Alice ", "Alice@Example.com ", true)
	require.NoError(t, err)
	require.Equal(t, want, got)
	repo.AssertExpectations(t)
}

func TestAccountService_CreateAccount_Invalid(t *testing.T) {
	svc := NewAccountService(new(mockAccountRepository))

	_, err := svc.CreateAccount(context.Background(), alice, "", "a@example.com", true)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateAccount(context.Background(), alice, "Alice", "example.com", true)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccountService_CreateAccount_UniqueViolation(t *testing.T) {
	repo := new(mockAccountRepository)
	svc := NewAccountService(repo)
	repo.On("CreateAccount", mock.Anything, mock.Anything).Return(nil, &pgconn.PgError{Code: "23505"})

	_, err := svc.CreateAccount(context.Background(), alice, "Alice", "alice@example.com", true)
	require.ErrorIs(t, err, ErrAccountExists)
}

func TestAccountService_OnlyOwnerMayChange(t *testing.T) {
	repo := new(mockAccountRepository)
	svc := NewAccountService(repo)

	_, err := svc.UpdateAccount(context.Background(), bob, alice, "Alice", "alice@example.com", true)
	require.ErrorIs(t, err, ErrForbidden)

	err = svc.DeleteAccount(context.Background(), bob, alice)
	require.ErrorIs(t, err, ErrForbidden)

	repo.AssertNotCalled(t, "UpdateAccount", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything)
}

func TestAccountService_ListAccounts_Defaults(t *testing.T) {
	repo := new(mockAccountRepository)
	svc := NewAccountService(repo)
	repo.On("ListAccounts", mock.Anything, 10, 0).Return([]Account{}, int64(0), nil)

	_, _, err := svc.ListAccounts(context.Background(), 0, 0)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAccountService_ListAccounts_HugePageSaturates(t *testing.T) {
	repo := new(mockAccountRepository)
	svc := NewAccountService(repo)
	repo.On("ListAccounts", mock.Anything, 100, math.MaxInt).Return([]Account{}, int64(3), nil)

	items, total, err := svc.ListAccounts(context.Background(), math.MaxInt, 100)
	require.NoError(t, err)
	require.Empty(t, items)
	require.EqualValues(t, 3, total)
	repo.AssertExpectations(t)
}

func TestMemoryAccountRepository(t *testing.T) {
	repo := NewMemoryAccountRepository()
	ctx := context.Background()

	created, err := repo.CreateAccount(ctx, Account{Address: alice, Name: "Alice", Email: "alice@example.com", Notify: true})
	require.NoError(t, err)
	require.False(t, created.CreatedAt.IsZero())

	_, err = repo.CreateAccount(ctx, Account{Address: alice, Name: "Again", Email: "other@example.com"})
	require.ErrorIs(t, err, ErrAccountExists)
	_, err = repo.CreateAccount(ctx, Account{Address: bob, Name: "Bob", Email: "alice@example.com"})
	require.ErrorIs(t, err, ErrAccountExists)

	_, err = repo.CreateAccount(ctx, Account{Address: bob, Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	updated, err := repo.UpdateAccount(ctx, Account{Address: alice, Name: "Alice B", Email: "alice@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Alice B", updated.Name)
	require.False(t, updated.Notify)

	items, total, err := repo.ListAccounts(ctx, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, items, 1)

	items, _, err = repo.ListAccounts(ctx, 10, -5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	items, _, err = repo.ListAccounts(ctx, math.MaxInt, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, repo.DeleteAccount(ctx, alice))
	require.ErrorIs(t, repo.DeleteAccount(ctx, alice), ErrAccountNotFound)
	_, err = repo.GetAccount(ctx, alice)
	require.ErrorIs(t, err, ErrAccountNotFound)
}
