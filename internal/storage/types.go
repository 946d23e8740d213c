package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrDuplicate    = errors.New("storage: duplicate")
	ErrReferenced   = errors.New("storage: referenced by dependent records")
	ErrValidation   = errors.New("storage: validation failed")
	ErrLastAdmin    = errors.New("storage: last active administrator")
	ErrSchemaTooNew = errors.New("storage: schema version newer than code")
)

// ReferenceError reports a delete refused because other rows still point at
// the target. Dependents maps table name to the number of referencing rows.
type ReferenceError struct {
	Entity     string
	ID         int64
	Dependents map[string]int
}

func (e *ReferenceError) Error() string {
	tables := make([]string, 0, len(e.Dependents))
	for table := range e.Dependents {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	parts := make([]string, 0, len(tables))
	for _, table := range tables {
		parts = append(parts, fmt.Sprintf("%s=%d", table, e.Dependents[table]))
	}
	return fmt.Sprintf("%s %d is referenced by %s", e.Entity, e.ID, strings.Join(parts, ", "))
}

func (e *ReferenceError) Is(target error) bool {
	return target == ErrReferenced
}

type EmployeeStatus string

const (
	EmployeeStatusActive   EmployeeStatus = "active"
	EmployeeStatusInactive EmployeeStatus = "inactive"
)

func (s EmployeeStatus) Valid() bool {
	return s == EmployeeStatusActive || s == EmployeeStatusInactive
}

type PropertyStatus string

const (
	PropertyStatusAvailable PropertyStatus = "available"
	PropertyStatusReserved  PropertyStatus = "reserved"
	PropertyStatusSold      PropertyStatus = "sold"
	PropertyStatusRented    PropertyStatus = "rented"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyStatusAvailable, PropertyStatusReserved, PropertyStatusSold, PropertyStatusRented:
		return true
	}
	return false
}

type ContractType string

const (
	ContractTypeSale ContractType = "sale"
	ContractTypeRent ContractType = "rent"
)

func (t ContractType) Valid() bool {
	return t == ContractTypeSale || t == ContractTypeRent
}

type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "active"
	ContractStatusCompleted ContractStatus = "completed"
	ContractStatusCancelled ContractStatus = "cancelled"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusActive, ContractStatusCompleted, ContractStatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodCard         PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheck, PaymentMethodCard:
		return true
	}
	return false
}

type ExpenseStatus string

const (
	ExpenseStatusPaid    ExpenseStatus = "paid"
	ExpenseStatusPending ExpenseStatus = "pending"
)

func (s ExpenseStatus) Valid() bool {
	return s == ExpenseStatusPaid || s == ExpenseStatusPending
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	FullName     string
	Email        string
	IsAdmin      bool
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Employee struct {
	ID        int64
	FullName  string
	Phone     string
	Email     string
	Position  string
	Salary    decimal.Decimal
	JoinDate  time.Time
	Status    EmployeeStatus
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Customer struct {
	ID        int64
	FullName  string
	Phone     string
	Email     string
	IDNumber  string
	Address   string
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Property struct {
	ID           int64
	ListingCode  string
	Type         string
	Title        string
	Description  string
	Address      string
	City         string
	Area         decimal.Decimal
	Price        decimal.Decimal
	Rooms        *int
	Bathrooms    *int
	Floor        *int
	TotalFloors  *int
	BuiltYear    *int
	Status       PropertyStatus
	EmployeeID   *int64
	EmployeeName string
	SourceURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PropertyImage struct {
	ID         int64
	PropertyID int64
	FilePath   string
	IsMain     bool
	CreatedAt  time.Time
}

type Contract struct {
	ID                  int64
	PropertyID          int64
	CustomerID          int64
	EmployeeID          int64
	ContractNumber      string
	Type                ContractType
	Amount              decimal.Decimal
	StartDate           time.Time
	SignDate            time.Time
	EndDate             *time.Time
	Status              ContractStatus
	Note                string
	PropertyTitle       string
	PropertyListingCode string
	CustomerName        string
	EmployeeName        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type DownPayment struct {
	ID             int64
	ContractID     int64
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Method         PaymentMethod
	PaymentType    string
	PaymentNumber  string
	Note           string
	ContractNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Expense struct {
	ID            int64
	Category      string
	Description   string
	Amount        decimal.Decimal
	ExpenseDate   time.Time
	EmployeeID    *int64
	PropertyID    *int64
	Status        ExpenseStatus
	Note          string
	EmployeeName  string
	PropertyTitle string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CompanyInfo is the single organization record printed on document headers.
type CompanyInfo struct {
	Name      string
	Address   string
	Phone     string
	Email     string
	Website   string
	TaxNumber string
	LogoPath  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PersonFilter struct {
	Search string
}

type PropertyFilter struct {
	Status     PropertyStatus
	Type       string
	City       string
	EmployeeID *int64
	Search     string
}

type ContractFilter struct {
	Status     ContractStatus
	Type       ContractType
	PropertyID *int64
	CustomerID *int64
	EmployeeID *int64
}

type DownPaymentFilter struct {
	ContractID *int64
	From       *time.Time
	To         *time.Time
}

type ExpenseFilter struct {
	Category   string
	Status     ExpenseStatus
	EmployeeID *int64
	PropertyID *int64
	From       *time.Time
	To         *time.Time
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

type EmployeeRepository interface {
	Create(ctx context.Context, employee *Employee) error
	Get(ctx context.Context, id int64) (*Employee, error)
	List(ctx context.Context, filter PersonFilter) ([]Employee, error)
	Update(ctx context.Context, employee *Employee) error
	Delete(ctx context.Context, id int64) error
}

type CustomerRepository interface {
	Create(ctx context.Context, customer *Customer) error
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, filter PersonFilter) ([]Customer, error)
	Update(ctx context.Context, customer *Customer) error
	Delete(ctx context.Context, id int64) error
}

type PropertyRepository interface {
	Create(ctx context.Context, property *Property) error
	Get(ctx context.Context, id int64) (*Property, error)
	List(ctx context.Context, filter PropertyFilter) ([]Property, error)
	Update(ctx context.Context, property *Property) error
	Delete(ctx context.Context, id int64) error

	AddImages(ctx context.Context, propertyID int64, paths []string) ([]PropertyImage, error)
	ListImages(ctx context.Context, propertyID int64) ([]PropertyImage, error)
	GetImage(ctx context.Context, imageID int64) (*PropertyImage, error)
	SetMainImage(ctx context.Context, imageID int64) error
	DeleteImage(ctx context.Context, imageID int64) error
}

type ContractRepository interface {
	Create(ctx context.Context, contract *Contract) error
	Get(ctx context.Context, id int64) (*Contract, error)
	List(ctx context.Context, filter ContractFilter) ([]Contract, error)
	Update(ctx context.Context, contract *Contract) error
	Delete(ctx context.Context, id int64) error
}

type DownPaymentRepository interface {
	Create(ctx context.Context, payment *DownPayment) error
	Get(ctx context.Context, id int64) (*DownPayment, error)
	List(ctx context.Context, filter DownPaymentFilter) ([]DownPayment, error)
	ListByContract(ctx context.Context, contractID int64) ([]DownPayment, error)
	TotalForContract(ctx context.Context, contractID int64) (decimal.Decimal, int, error)
	Update(ctx context.Context, payment *DownPayment) error
	Delete(ctx context.Context, id int64) error
}

type ExpenseRepository interface {
	Create(ctx context.Context, expense *Expense) error
	Get(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, filter ExpenseFilter) ([]Expense, error)
	Update(ctx context.Context, expense *Expense) error
	Delete(ctx context.Context, id int64) error
}

type CompanyRepository interface {
	Get(ctx context.Context) (*CompanyInfo, error)
	Save(ctx context.Context, info *CompanyInfo) error
}
