package entities

import "time"

// IdentityType is the borrower category code. It doubles as the privilege level.
type IdentityType int

const (
	IdentityStudent     IdentityType = 1
	IdentityStaff       IdentityType = 2
	IdentityAdmin       IdentityType = 3
	IdentitySeniorAdmin IdentityType = 4
	IdentitySuperAdmin  IdentityType = 5
)

// IsAdmin reports whether the type carries administrator privileges.
func (t IdentityType) IsAdmin() bool { return t >= IdentityAdmin }

// IsSuperAdmin reports whether the type may manage other administrators.
func (t IdentityType) IsSuperAdmin() bool { return t >= IdentitySuperAdmin }

type BorrowingStatus string

const (
	BorrowingActive    BorrowingStatus = "active"
	BorrowingSuspended BorrowingStatus = "suspended"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type UserType struct {
	TypeID   IdentityType `gorm:"column:type_id;primaryKey;autoIncrement:false" json:"type_id"`
	TypeName string       `gorm:"size:50" json:"type_name"`
}

func (UserType) TableName() string { return "user_types" }

type Borrower struct {
	UID              string          `gorm:"column:uid;primaryKey;size:64" json:"uid"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	Phone            string          `gorm:"size:32" json:"phone"`
	IdentityType     IdentityType    `gorm:"index;not null" json:"identity_type"`
	StudentID        *string         `gorm:"size:64" json:"student_id"`
	EmployeeID       *string         `gorm:"size:64" json:"employee_id"`
	RegistrationDate time.Time       `json:"registration_date"`
	BorrowingStatus  BorrowingStatus `gorm:"size:20;default:active" json:"borrowing_status"`
	BorrowedCount    int             `gorm:"default:0" json:"borrowed_count"`
}

func (Borrower) TableName() string { return "borrowers" }

// UserAuth holds the credentials for a borrower. IsAdmin mirrors IdentityType >= 3.
type UserAuth struct {
	UserID       string `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool   `gorm:"default:false" json:"is_admin"`
}

func (UserAuth) TableName() string { return "user_auth" }

type Publisher struct {
	PublisherID uint   `gorm:"column:publisher_id;primaryKey" json:"publisher_id"`
	Name        string `gorm:"size:200;uniqueIndex" json:"name"`
}

func (Publisher) TableName() string { return "publishers" }

type Author struct {
	AuthorID uint   `gorm:"column:author_id;primaryKey" json:"author_id"`
	Name     string `gorm:"size:200;index" json:"name"`
}

func (Author) TableName() string { return "authors" }

type Book struct {
	BookID          string     `gorm:"column:book_id;primaryKey;size:64" json:"book_id"`
	Title           string     `gorm:"size:512;index;not null" json:"title"`
	ISBN            string     `gorm:"column:isbn;size:20;index" json:"isbn"`
	PublisherID     *uint      `gorm:"column:publisher_id;index" json:"publisher_id"`
	PublicationYear int        `json:"publication_year"`
	TotalStock      int        `gorm:"not null;default:0" json:"total_stock"`
	CurrentStock    int        `gorm:"not null;default:0" json:"current_stock"`
	Location        string     `gorm:"size:100" json:"location"`
	Publisher       *Publisher `gorm:"foreignKey:PublisherID;references:PublisherID" json:"publisher,omitempty"`
	Authors         []Author   `gorm:"many2many:book_authors;joinForeignKey:book_id;joinReferences:author_id" json:"authors,omitempty"`
}

func (Book) TableName() string { return "books" }

// BorrowingRecord is OUTSTANDING while ReturnDate is nil and RETURNED afterwards.
type BorrowingRecord struct {
	RecordID   uint       `gorm:"column:record_id;primaryKey" json:"record_id"`
	BookID     string     `gorm:"index;size:64;not null" json:"book_id"`
	BorrowerID string     `gorm:"index;size:64;not null" json:"borrower_id"`
	BorrowDate time.Time  `gorm:"index" json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date"`
}

func (BorrowingRecord) TableName() string { return "borrowing_records" }

// IsOutstanding reports whether the loan is still open.
func (r BorrowingRecord) IsOutstanding() bool { return r.ReturnDate == nil }

type FineRecord struct {
	FineID        uint          `gorm:"column:fine_id;primaryKey" json:"fine_id"`
	RecordID      uint          `gorm:"index" json:"record_id"`
	BookID        string        `gorm:"index;size:64" json:"book_id"`
	BorrowerID    string        `gorm:"index;size:64;not null" json:"borrower_id"`
	BorrowDate    time.Time     `json:"borrow_date"`
	OverdueDays   int           `json:"overdue_days"`
	Amount        float64       `json:"amount"`
	PaymentStatus PaymentStatus `gorm:"size:10;default:unpaid;index" json:"payment_status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

func (FineRecord) TableName() string { return "fine_records" }

type LoginLog struct {
	LogID     uint      `gorm:"column:log_id;primaryKey" json:"log_id"`
	UserID    string    `gorm:"index;size:64;not null" json:"user_id"`
	LoginTime time.Time `gorm:"index" json:"login_time"`
}

func (LoginLog) TableName() string { return "login_logs" }

// BorrowerProfile is a borrower joined with its type name and admin flag.
type BorrowerProfile struct {
	Borrower
	TypeName string `json:"identity_type_name"`
	IsAdmin  bool   `json:"is_admin"`
}

// BorrowingRecordView is a borrowing record joined with book and borrower columns.
type BorrowingRecordView struct {
	BorrowingRecord
	BookTitle    string       `json:"book_title"`
	BorrowerName string       `json:"borrower_name,omitempty"`
	IdentityType IdentityType `json:"identity_type,omitempty"`
}

// FineRecordView is a fine record joined with book and borrower columns.
type FineRecordView struct {
	FineRecord
	BookTitle    string       `json:"book_title"`
	BorrowerName string       `json:"borrower_name,omitempty"`
	IdentityType IdentityType `json:"identity_type,omitempty"`
}

// LoginLogView is a login log joined with the borrower's name and type.
type LoginLogView struct {
	LoginLog
	UserName     string       `json:"user_name"`
	IdentityType IdentityType `json:"identity_type"`
}

// DefaultUserTypes seeds the user_types lookup table.
var DefaultUserTypes = []UserType{
	{TypeID: IdentityStudent, TypeName: "student"},
	{TypeID: IdentityStaff, TypeName: "staff"},
	{TypeID: IdentityAdmin, TypeName: "admin"},
	{TypeID: IdentitySeniorAdmin, TypeName: "senior admin"},
	{TypeID: IdentitySuperAdmin, TypeName: "super admin"},
}

// AllModels lists every table the gateway migrates.
func AllModels() []any {
	return []any{
		&UserType{},
		&Borrower{},
		&UserAuth{},
		&Publisher{},
		&Author{},
		&Book{},
		&BorrowingRecord{},
		&FineRecord{},
		&LoginLog{},
		&AuditEvent{},
	}
}
