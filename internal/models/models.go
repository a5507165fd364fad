package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// ValidRole reports whether r is one of the two recognized roles.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleStudent
}

type RequestType string

const (
	RequestTypeBorrow RequestType = "borrow"
	RequestTypeReturn RequestType = "return"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

type Account struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

type Book struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Available int    `json:"available"`
}

const dateLayout = "2006-01-02"

// Date is a calendar date. Loan dates are dates, not instants, and are
// written to disk as plain YYYY-MM-DD strings.
type Date struct {
	time.Time
}

// Today returns the current date in UTC.
func Today() Date {
	return Date{Time: time.Now().UTC().Truncate(24 * time.Hour)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Loan records one issued copy of a book. An open loan has ReturnDate == nil.
// Loans are appended and closed, never deleted.
type Loan struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	BookID     int    `json:"bookId"`
	Title      string `json:"title"`
	IssueDate  Date   `json:"issue_date"`
	ReturnDate *Date  `json:"return_date"`
}

// Open reports whether the loan has not been returned yet.
func (l Loan) Open() bool {
	return l.ReturnDate == nil
}

type Request struct {
	ID          int           `json:"id"`
	Type        RequestType   `json:"type"`
	Username    string        `json:"username"`
	BookID      int           `json:"bookId"`
	Title       string        `json:"title"`
	RequestedAt time.Time     `json:"requested_at"`
	Status      RequestStatus `json:"status"`
}

// Identity is the resolved caller attached to every authenticated operation.
type Identity struct {
	AccountID int    `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
}
