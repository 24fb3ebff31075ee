package accounts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"soundwork/pkg/ledger"
)

var (
	ErrForbidden    = errors.New("accounts can only be changed by their own address")
	ErrInvalidInput = errors.New("invalid account details")
)

type AccountService interface {
	CreateAccount(ctx context.Context, caller ledger.Address, name, email string, notify bool) (Account, error)
	UpdateAccount(ctx context.Context, caller, addr ledger.Address, name, email string, notify bool) (Account, error)
	DeleteAccount(ctx context.Context, caller, addr ledger.Address) error
	GetAccount(ctx context.Context, addr ledger.Address) (Account, error)
	ListAccounts(ctx context.Context, page, limit int) ([]Account, int64, error)
}

type accountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) AccountService {
	return &accountService{repo: repo}
}

func normalize(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return "", "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if at := strings.LastIndex(email, "@"); at < 1 || at == len(email)-1 {
		return "", "", fmt.Errorf("%w: email %q", ErrInvalidInput, email)
	}
	return name, email, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *accountService) CreateAccount(ctx context.Context, caller ledger.Address, name, email string, notify bool) (Account, error) {
	name, email, err := normalize(name, email)
	if err != nil {
		return Account{}, err
	}
	a, err := s.repo.CreateAccount(ctx, Account{Address: caller, Name: name, Email: email, Notify: notify})
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}
	return a, nil
}

func (s *accountService) UpdateAccount(ctx context.Context, caller, addr ledger.Address, name, email string, notify bool) (Account, error) {
	if caller != addr {
		return Account{}, ErrForbidden
	}
	name, email, err := normalize(name, email)
	if err != nil {
		return Account{}, err
	}
	a, err := s.repo.UpdateAccount(ctx, Account{Address: addr, Name: name, Email: email, Notify: notify})
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}
	return a, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, caller, addr ledger.Address) error {
	if caller != addr {
		return ErrForbidden
	}
	return s.repo.DeleteAccount(ctx, addr)
}

func (s *accountService) GetAccount(ctx context.Context, addr ledger.Address) (Account, error) {
	return s.repo.GetAccount(ctx, addr)
}

func (s *accountService) ListAccounts(ctx context.Context, page, limit int) ([]Account, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}
	return s.repo.ListAccounts(ctx, limit, offset)
}
