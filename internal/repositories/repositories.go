package repositories

import (
	"libraryportal/internal/models"
	"libraryportal/internal/storage"
)

// Each repository owns one flat collection. All returns the full collection
// (empty when nothing has been persisted yet) and Save rewrites it wholesale;
// the service layer mutates in memory between the two calls.

type AccountRepository interface {
	All() ([]models.Account, error)
	Save(accounts []models.Account) error
}

type BookRepository interface {
	All() ([]models.Book, error)
	Save(books []models.Book) error
}

type LoanRepository interface {
	All() ([]models.Loan, error)
	Save(loans []models.Loan) error
}

type RequestRepository interface {
	All() ([]models.Request, error)
	Save(requests []models.Request) error
}

// concrete implementations

type accountRepository struct {
	store *storage.Store
}

func NewAccountRepository(store *storage.Store) AccountRepository {
	return &accountRepository{store: store}
}

func (r *accountRepository) All() ([]models.Account, error) {
	accounts := []models.Account{}
	if err := r.store.Load(storage.CollectionAccounts, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) Save(accounts []models.Account) error {
	return r.store.Save(storage.CollectionAccounts, accounts)
}

type bookRepository struct {
	store *storage.Store
}

func NewBookRepository(store *storage.Store) BookRepository {
	return &bookRepository{store: store}
}

func (r *bookRepository) All() ([]models.Book, error) {
	books := []models.Book{}
	if err := r.store.Load(storage.CollectionBooks, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) Save(books []models.Book) error {
	return r.store.Save(storage.CollectionBooks, books)
}

type loanRepository struct {
	store *storage.Store
}

func NewLoanRepository(store *storage.Store) LoanRepository {
	return &loanRepository{store: store}
}

func (r *loanRepository) All() ([]models.Loan, error) {
	loans := []models.Loan{}
	if err := r.store.Load(storage.CollectionLoans, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) Save(loans []models.Loan) error {
	return r.store.Save(storage.CollectionLoans, loans)
}

type requestRepository struct {
	store *storage.Store
}

func NewRequestRepository(store *storage.Store) RequestRepository {
	return &requestRepository{store: store}
}

func (r *requestRepository) All() ([]models.Request, error) {
	requests := []models.Request{}
	if err := r.store.Load(storage.CollectionRequests, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) Save(requests []models.Request) error {
	return r.store.Save(storage.CollectionRequests, requests)
}
