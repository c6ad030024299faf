// Package books provides database operations for the book catalogue.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	found, err := repo.Search(ctx, books.FieldAuthor, "tolkien")
package books

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/libdesk/libdesk/internal/entities"
)

var (
	ErrNotFound     = errors.New("book not found")
	ErrUnknownField = errors.New("unknown search field")
)

// SearchField restricts a search to one attribute of a book.
type SearchField string

const (
	FieldAny       SearchField = ""
	FieldTitle     SearchField = "name"
	FieldAuthor    SearchField = "author"
	FieldPublisher SearchField = "publisher"
	FieldISBN      SearchField = "isbn"
	// FieldTag has no backing column; it searches like FieldAny.
	FieldTag SearchField = "tag"
)

// ParseSearchField maps a route segment onto a SearchField.
func ParseSearchField(raw string) (SearchField, error) {
	switch field := SearchField(strings.ToLower(raw)); field {
	case FieldAny, FieldTitle, FieldAuthor, FieldPublisher, FieldISBN, FieldTag:
		return field, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, raw)
	}
}

// Repository handles all book catalogue queries.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository. Pass a transaction handle to
// run the helpers inside a caller's transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Publisher").Preload("Authors")
}

// List returns the whole catalogue ordered by title.
func (r *Repository) List(ctx context.Context) ([]entities.Book, error) {
	var books []entities.Book
	err := r.withRelations(ctx).Order("title ASC").Find(&books).Error
	return books, err
}

// GetByID retrieves a book with its publisher and authors.
func (r *Repository) GetByID(ctx context.Context, bookID string) (*entities.Book, error) {
	var book entities.Book
	err := r.withRelations(ctx).Where("book_id = ?", bookID).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Search performs a case-insensitive substring match restricted to field.
func (r *Repository) Search(ctx context.Context, field SearchField, query string) ([]entities.Book, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	authorMatch := "book_id IN (SELECT ba.book_id FROM book_authors ba JOIN authors a ON a.author_id = ba.author_id WHERE LOWER(a.name) LIKE ?)"

	q := r.withRelations(ctx)
	switch field {
	case FieldTitle:
		q = q.Where("LOWER(title) LIKE ?", pattern)
	case FieldAuthor:
		q = q.Where(authorMatch, pattern)
	case FieldPublisher:
		q = q.Where("publisher_id IN (SELECT publisher_id FROM publishers WHERE LOWER(name) LIKE ?)", pattern)
	case FieldISBN:
		q = q.Where("LOWER(isbn) LIKE ?", pattern)
	case FieldAny, FieldTag:
		q = q.Where("LOWER(title) LIKE ? OR LOWER(isbn) LIKE ? OR "+authorMatch, pattern, pattern, pattern)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	var books []entities.Book
	err := q.Order("title ASC").Find(&books).Error
	return books, err
}

// Exists reports whether a book with the given id or ISBN is already catalogued.
func (r *Repository) Exists(ctx context.Context, bookID, isbn string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&entities.Book{}).Where("book_id = ?", bookID)
	if isbn != "" {
		q = q.Or("isbn = ?", isbn)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// OutstandingLoans counts borrowing records for the book that have not been returned.
func (r *Repository) OutstandingLoans(ctx context.Context, bookID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.BorrowingRecord{}).
		Where("book_id = ? AND return_date IS NULL", bookID).
		Count(&count).Error
	return count, err
}

// EnsurePublisher returns the id of the named publisher, creating it when missing.
func (r *Repository) EnsurePublisher(ctx context.Context, name string) (*uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	publisher := entities.Publisher{Name: name}
	if err := r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&publisher).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve publisher %q: %w", name, err)
	}
	return &publisher.PublisherID, nil
}

// EnsureAuthors resolves author names to rows, creating missing ones.
func (r *Repository) EnsureAuthors(ctx context.Context, names []string) ([]entities.Author, error) {
	authors := make([]entities.Author, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		author := entities.Author{Name: name}
		if err := r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&author).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve author %q: %w", name, err)
		}
		authors = append(authors, author)
	}
	return authors, nil
}

// ReplaceAuthors rewrites the author list of a book.
func (r *Repository) ReplaceAuthors(ctx context.Context, book *entities.Book, authors []entities.Author) error {
	return r.db.WithContext(ctx).Model(book).Association("Authors").Replace(authors)
}
