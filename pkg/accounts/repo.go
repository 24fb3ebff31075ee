package accounts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"soundwork/pkg/ledger"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account exists with that address or email")
)

type AccountRepository interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	UpdateAccount(ctx context.Context, a Account) (Account, error)
	DeleteAccount(ctx context.Context, addr ledger.Address) error
	GetAccount(ctx context.Context, addr ledger.Address) (Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]Account, int64, error)
}

type postgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &postgresAccountRepository{pool: pool}
}

const accountColumns = "address, name, email, notify, created_at, updated_at"

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var addr string
	if err := row.Scan(&addr, &a.Name, &a.Email, &a.Notify, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	a.Address = ledger.Address(addr)
	return a, nil
}

func (r *postgresAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	query := `INSERT INTO accounts (address, name, email, notify, created_at, updated_at)
              VALUES ($1, $2, $3, $4, NOW(), NOW())
              RETURNING ` + accountColumns
	return scanAccount(r.pool.QueryRow(ctx, query, a.Address.String(), a.Name, a.Email, a.Notify))
}

func (r *postgresAccountRepository) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	query := `UPDATE accounts
              SET name = $1, email = $2, notify = $3, updated_at = NOW()
              WHERE address = $4
              RETURNING ` + accountColumns
	return scanAccount(r.pool.QueryRow(ctx, query, a.Name, a.Email, a.Notify, a.Address.String()))
}

func (r *postgresAccountRepository) DeleteAccount(ctx context.Context, addr ledger.Address) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM accounts WHERE address = $1", addr.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *postgresAccountRepository) GetAccount(ctx context.Context, addr ledger.Address) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE address = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, addr.String()))
}

func (r *postgresAccountRepository) ListAccounts(ctx context.Context, limit, offset int) ([]Account, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at ASC, address ASC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// memoryAccountRepository backs STORAGE_BACKEND=memory.
type memoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[ledger.Address]Account
	now      func() time.Time
}

func NewMemoryAccountRepository() AccountRepository {
	return &memoryAccountRepository{
		accounts: make(map[ledger.Address]Account),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *memoryAccountRepository) emailTaken(email string, except ledger.Address) bool {
	for addr, a := range r.accounts {
		if addr != except && a.Email == email {
			return true
		}
	}
	return false
}

func (r *memoryAccountRepository) CreateAccount(ctx context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.Address]; ok || r.emailTaken(a.Email, "") {
		return Account{}, ErrAccountExists
	}
	a.CreatedAt = r.now()
	a.UpdatedAt = a.CreatedAt
	r.accounts[a.Address] = a
	return a, nil
}

func (r *memoryAccountRepository) UpdateAccount(ctx context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.accounts[a.Address]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if r.emailTaken(a.Email, a.Address) {
		return Account{}, ErrAccountExists
	}
	existing.Name = a.Name
	existing.Email = a.Email
	existing.Notify = a.Notify
	existing.UpdatedAt = r.now()
	r.accounts[a.Address] = existing
	return existing, nil
}

func (r *memoryAccountRepository) DeleteAccount(ctx context.Context, addr ledger.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[addr]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, addr)
	return nil
}

func (r *memoryAccountRepository) GetAccount(ctx context.Context, addr ledger.Address) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[addr]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryAccountRepository) ListAccounts(ctx context.Context, limit, offset int) ([]Account, int64, error) {
	r.mu.RLock()
	all := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		all = append(all, a)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Address < all[j].Address
	})

	total := int64(len(all))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []Account{}, total, nil
	}
	end := len(all)
	if limit > 0 && limit < len(all)-offset {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
