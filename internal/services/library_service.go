package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"libraryportal/internal/models"
	"libraryportal/internal/repositories"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrMissingFields is returned when a required field is empty.
	ErrMissingFields = errors.New("missing fields")

	// ErrInvalidRole is returned when a signup names a role other than
	// admin or student.
	ErrInvalidRole = errors.New("invalid role")

	// ErrUsernameExists is returned when a signup reuses a taken username.
	ErrUsernameExists = errors.New("username exists")

	// ErrInvalidCredentials is returned on any username/password mismatch.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrNoCopiesAvailable is returned when a borrow request targets a book
	// with no loanable copies left.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrDuplicatePendingRequest is returned when the user already has a
	// pending request of the same type for the same book.
	ErrDuplicatePendingRequest = errors.New("duplicate pending request")

	// ErrAlreadyBorrowed is returned when the user already holds an open
	// loan for the book. At most one open loan may exist per user and book.
	ErrAlreadyBorrowed = errors.New("book already borrowed")

	// ErrNoActiveIssue is returned when a return request targets a book the
	// user does not currently hold.
	ErrNoActiveIssue = errors.New("no active issue for this book")

	// ErrRequestNotPending is returned when the referenced request does not
	// exist or has already been resolved. Terminal statuses are final.
	ErrRequestNotPending = errors.New("request not found or not pending")

	// ErrBookUnavailable is returned when a borrow approval finds no copy
	// left at approval time. The request stays pending.
	ErrBookUnavailable = errors.New("book not available")

	// ErrNoOpenIssue is returned when a return approval finds no open loan
	// to close. The request stays pending.
	ErrNoOpenIssue = errors.New("no open issue found")

	// ErrActiveIssuesExist is returned when deleting a book that still has
	// unreturned loans.
	ErrActiveIssuesExist = errors.New("cannot delete: book has active issues")
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the application-level operations of the library
// system: account management, catalog management, and the borrow/return
// request workflow.
type LibraryService interface {
	Register(username, password string, role models.Role) (*models.Account, error)
	Authenticate(username, password string) (*models.Account, error)

	ListBooks() ([]models.Book, error)
	AddBook(title, author string, available int) (*models.Book, error)
	RemoveBook(bookID int) error

	RequestBorrow(username string, bookID int) (*models.Request, error)
	RequestReturn(username string, bookID int) (*models.Request, error)
	ApproveRequest(requestID int) error
	RejectRequest(requestID int) error

	ListLoans() ([]models.Loan, error)
	ListOpenLoans(username string) ([]models.Loan, error)
	ListPendingRequests() ([]models.Request, error)
	ListUserPendingRequests(username string) ([]models.Request, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	// mu serializes every operation's load-validate-save sequence. The flat
	// collections have no isolation of their own, so interleaved operations
	// on the same collection would lose writes.
	mu sync.Mutex

	accountRepo repositories.AccountRepository
	bookRepo    repositories.BookRepository
	loanRepo    repositories.LoanRepository
	requestRepo repositories.RequestRepository
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	accountRepo repositories.AccountRepository,
	bookRepo repositories.BookRepository,
	loanRepo repositories.LoanRepository,
	requestRepo repositories.RequestRepository,
) LibraryService {
	return &libraryService{
		accountRepo: accountRepo,
		bookRepo:    bookRepo,
		loanRepo:    loanRepo,
		requestRepo: requestRepo,
	}
}

// nextID assigns max existing id + 1, or 1 for an empty collection. The
// scheme is deterministic per collection and deliberately not safe for
// concurrent writers; the service mutex is what makes it hold.
func nextID[T any](items []T, id func(T) int) int {
	max := 0
	for _, item := range items {
		if id(item) > max {
			max = id(item)
		}
	}
	return max + 1
}

// ─── Accounts ─────────────────────────────────────────────────────────────────

// Register creates a new account. Usernames are unique across all accounts
// and the role must be one of the two recognized values.
func (s *libraryService) Register(username, password string, role models.Role) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if username == "" || password == "" || role == "" {
		return nil, ErrMissingFields
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	accounts, err := s.accountRepo.All()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Username == username {
			return nil, ErrUsernameExists
		}
	}

	account := models.Account{
		ID:       nextID(accounts, func(a models.Account) int { return a.ID }),
		Username: username,
		Password: password,
		Role:     role,
	}
	accounts = append(accounts, account)
	if err := s.accountRepo.Save(accounts); err != nil {
		log.Printf("[ERROR] Register: failed to persist accounts: %v", err)
		return nil, err
	}
	log.Printf("[INFO] Register: created %s account %q (id=%d)", account.Role, account.Username, account.ID)
	return &account, nil
}

// Authenticate matches username and password exactly against the account
// store.
func (s *libraryService) Authenticate(username, password string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.accountRepo.All()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Username == username && a.Password == password {
			account := a
			return &account, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

// ListBooks returns the full catalog.
func (s *libraryService) ListBooks() ([]models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookRepo.All()
}

// AddBook creates a catalog entry. Negative availability is clamped to zero.
func (s *libraryService) AddBook(title, author string, available int) (*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if title == "" || author == "" {
		return nil, ErrMissingFields
	}
	if available < 0 {
		available = 0
	}

	books, err := s.bookRepo.All()
	if err != nil {
		return nil, err
	}
	book := models.Book{
		ID:        nextID(books, func(b models.Book) int { return b.ID }),
		Title:     title,
		Author:    author,
		Available: available,
	}
	books = append(books, book)
	if err := s.bookRepo.Save(books); err != nil {
		log.Printf("[ERROR] AddBook: failed to persist books: %v", err)
		return nil, err
	}
	log.Printf("[INFO] AddBook: added %q by %s (id=%d, available=%d)", book.Title, book.Author, book.ID, book.Available)
	return &book, nil
}

// RemoveBook deletes a catalog entry. A book with any open loan cannot be
// deleted; removing a book that does not exist succeeds silently.
func (s *libraryService) RemoveBook(bookID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.loanRepo.All()
	if err != nil {
		return err
	}
	for _, l := range loans {
		if l.BookID == bookID && l.Open() {
			return ErrActiveIssuesExist
		}
	}

	books, err := s.bookRepo.All()
	if err != nil {
		return err
	}
	kept := books[:0]
	for _, b := range books {
		if b.ID != bookID {
			kept = append(kept, b)
		}
	}
	if err := s.bookRepo.Save(kept); err != nil {
		log.Printf("[ERROR] RemoveBook: failed to persist books: %v", err)
		return err
	}
	log.Printf("[INFO] RemoveBook: removed book id=%d", bookID)
	return nil
}

// ─── Student Requests ─────────────────────────────────────────────────────────

// RequestBorrow files a pending borrow request. No copy is reserved: the
// availability check here is advisory and is re-run at approval time, so
// many pending requests may outnumber the copies and approval order decides
// who gets the book.
func (s *libraryService) RequestBorrow(username string, bookID int) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	books, err := s.bookRepo.All()
	if err != nil {
		return nil, err
	}
	book := findBook(books, bookID)
	if book == nil {
		return nil, ErrBookNotFound
	}
	if book.Available <= 0 {
		return nil, ErrNoCopiesAvailable
	}

	loans, err := s.loanRepo.All()
	if err != nil {
		return nil, err
	}
	if findOpenLoan(loans, username, bookID) != nil {
		return nil, ErrAlreadyBorrowed
	}

	requests, err := s.requestRepo.All()
	if err != nil {
		return nil, err
	}
	if hasPending(requests, username, bookID, models.RequestTypeBorrow) {
		return nil, ErrDuplicatePendingRequest
	}

	request := models.Request{
		ID:          nextID(requests, func(r models.Request) int { return r.ID }),
		Type:        models.RequestTypeBorrow,
		Username:    username,
		BookID:      book.ID,
		Title:       book.Title,
		RequestedAt: time.Now().UTC(),
		Status:      models.RequestStatusPending,
	}
	requests = append(requests, request)
	if err := s.requestRepo.Save(requests); err != nil {
		log.Printf("[ERROR] RequestBorrow: failed to persist requests: %v", err)
		return nil, err
	}
	log.Printf("[INFO] RequestBorrow: user %s requested book %d (%q), request id=%d", username, book.ID, book.Title, request.ID)
	return &request, nil
}

// RequestReturn files a pending return request for a book the user
// currently holds.
func (s *libraryService) RequestReturn(username string, bookID int) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.loanRepo.All()
	if err != nil {
		return nil, err
	}
	open := findOpenLoan(loans, username, bookID)
	if open == nil {
		return nil, ErrNoActiveIssue
	}

	requests, err := s.requestRepo.All()
	if err != nil {
		return nil, err
	}
	if hasPending(requests, username, bookID, models.RequestTypeReturn) {
		return nil, ErrDuplicatePendingRequest
	}

	request := models.Request{
		ID:          nextID(requests, func(r models.Request) int { return r.ID }),
		Type:        models.RequestTypeReturn,
		Username:    username,
		BookID:      bookID,
		Title:       open.Title,
		RequestedAt: time.Now().UTC(),
		Status:      models.RequestStatusPending,
	}
	requests = append(requests, request)
	if err := s.requestRepo.Save(requests); err != nil {
		log.Printf("[ERROR] RequestReturn: failed to persist requests: %v", err)
		return nil, err
	}
	log.Printf("[INFO] RequestReturn: user %s requested return of book %d, request id=%d", username, bookID, request.ID)
	return &request, nil
}

// ─── Admin Resolution ─────────────────────────────────────────────────────────

// ApproveRequest resolves a pending request.
//
// Borrow: availability is re-checked at approval time, since the request
// held no reservation. On success one copy is deducted and an open loan is
// appended. Return: the matching open loan is closed and the copy restored
// to the catalog.
//
// If the precondition fails the request stays pending, so the admin can
// retry later or reject it. On success the request is marked approved and
// the requests, books, and loans collections are all persisted.
func (s *libraryService) ApproveRequest(requestID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.requestRepo.All()
	if err != nil {
		return err
	}
	request := findPendingRequest(requests, requestID)
	if request == nil {
		return ErrRequestNotPending
	}

	books, err := s.bookRepo.All()
	if err != nil {
		return err
	}
	loans, err := s.loanRepo.All()
	if err != nil {
		return err
	}
	book := findBook(books, request.BookID)

	switch request.Type {
	case models.RequestTypeBorrow:
		if book == nil || book.Available <= 0 {
			log.Printf("[WARN] ApproveRequest: request %d for book %d cannot be satisfied, leaving pending", request.ID, request.BookID)
			return ErrBookUnavailable
		}
		// Re-checked here as well: the user must not end up holding two open
		// loans for the same book, whatever state the request was filed in.
		if findOpenLoan(loans, request.Username, request.BookID) != nil {
			log.Printf("[WARN] ApproveRequest: user %s already holds book %d, leaving request %d pending", request.Username, request.BookID, request.ID)
			return ErrAlreadyBorrowed
		}
		book.Available--
		loans = append(loans, models.Loan{
			ID:        nextID(loans, func(l models.Loan) int { return l.ID }),
			Username:  request.Username,
			BookID:    book.ID,
			Title:     book.Title,
			IssueDate: models.Today(),
		})

	case models.RequestTypeReturn:
		open := findOpenLoan(loans, request.Username, request.BookID)
		if open == nil {
			log.Printf("[WARN] ApproveRequest: no open issue for request %d (user=%s book=%d), leaving pending", request.ID, request.Username, request.BookID)
			return ErrNoOpenIssue
		}
		returned := models.Today()
		open.ReturnDate = &returned
		// The book may have been deleted while the loan was out; the copy is
		// simply not restored in that case.
		if book != nil {
			book.Available++
		}
	}

	request.Status = models.RequestStatusApproved

	if err := s.requestRepo.Save(requests); err != nil {
		log.Printf("[ERROR] ApproveRequest: failed to persist requests: %v", err)
		return err
	}
	if err := s.bookRepo.Save(books); err != nil {
		log.Printf("[ERROR] ApproveRequest: failed to persist books: %v", err)
		return err
	}
	if err := s.loanRepo.Save(loans); err != nil {
		log.Printf("[ERROR] ApproveRequest: failed to persist loans: %v", err)
		return err
	}
	log.Printf("[INFO] ApproveRequest: approved %s request %d (user=%s, book=%d)", request.Type, request.ID, request.Username, request.BookID)
	return nil
}

// RejectRequest marks a pending request rejected. No other collection
// changes.
func (s *libraryService) RejectRequest(requestID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.requestRepo.All()
	if err != nil {
		return err
	}
	request := findPendingRequest(requests, requestID)
	if request == nil {
		return ErrRequestNotPending
	}

	request.Status = models.RequestStatusRejected
	if err := s.requestRepo.Save(requests); err != nil {
		log.Printf("[ERROR] RejectRequest: failed to persist requests: %v", err)
		return err
	}
	log.Printf("[INFO] RejectRequest: rejected %s request %d (user=%s, book=%d)", request.Type, request.ID, request.Username, request.BookID)
	return nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// ListLoans returns every loan ever issued, open or closed.
func (s *libraryService) ListLoans() ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loanRepo.All()
}

// ListOpenLoans returns the user's currently held books.
func (s *libraryService) ListOpenLoans(username string) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.loanRepo.All()
	if err != nil {
		return nil, err
	}
	mine := []models.Loan{}
	for _, l := range loans {
		if l.Username == username && l.Open() {
			mine = append(mine, l)
		}
	}
	return mine, nil
}

// ListPendingRequests returns all unresolved requests.
func (s *libraryService) ListPendingRequests() ([]models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.requestRepo.All()
	if err != nil {
		return nil, err
	}
	pending := []models.Request{}
	for _, r := range requests {
		if r.Status == models.RequestStatusPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// ListUserPendingRequests returns the user's unresolved requests.
func (s *libraryService) ListUserPendingRequests(username string) ([]models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests, err := s.requestRepo.All()
	if err != nil {
		return nil, err
	}
	mine := []models.Request{}
	for _, r := range requests {
		if r.Username == username && r.Status == models.RequestStatusPending {
			mine = append(mine, r)
		}
	}
	return mine, nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func findBook(books []models.Book, bookID int) *models.Book {
	for i := range books {
		if books[i].ID == bookID {
			return &books[i]
		}
	}
	return nil
}

func findOpenLoan(loans []models.Loan, username string, bookID int) *models.Loan {
	for i := range loans {
		if loans[i].Username == username && loans[i].BookID == bookID && loans[i].Open() {
			return &loans[i]
		}
	}
	return nil
}

func findPendingRequest(requests []models.Request, requestID int) *models.Request {
	for i := range requests {
		if requests[i].ID == requestID && requests[i].Status == models.RequestStatusPending {
			return &requests[i]
		}
	}
	return nil
}

func hasPending(requests []models.Request, username string, bookID int, t models.RequestType) bool {
	for _, r := range requests {
		if r.Username == username && r.BookID == bookID && r.Type == t && r.Status == models.RequestStatusPending {
			return true
		}
	}
	return false
}
