package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/libdesk/libdesk/internal/entities"
)

// SearchField narrows a search to one attribute. The zero value searches title, ISBN and author.
type SearchField string

const (
	SearchAny       SearchField = ""
	SearchTitle     SearchField = "name"
	SearchAuthor    SearchField = "author"
	SearchTag       SearchField = "tag"
	SearchPublisher SearchField = "publisher"
	SearchISBN      SearchField = "isbn"
)

// BooksService covers /books.
type BooksService struct {
	client *Client
}

// BookInput is the body of add and update. Nil CurrentStock lets the server derive it.
type BookInput struct {
	BookID          string   `json:"book_id,omitempty"`
	Title           string   `json:"title"`
	ISBN            string   `json:"isbn,omitempty"`
	PublisherID     *uint    `json:"publisher_id,omitempty"`
	Publisher       string   `json:"publisher,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	PublicationYear int      `json:"publication_year,omitempty"`
	TotalStock      int      `json:"total_stock"`
	CurrentStock    *int     `json:"current_stock,omitempty"`
	Location        string   `json:"location,omitempty"`
}

type BorrowResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	RecordID uint   `json:"recordId"`
}

type ReturnResult struct {
	Message      string  `json:"message"`
	OverdueDays  int     `json:"overdueDays"`
	FineAmount   float64 `json:"fineAmount"`
	FineRecordID *uint   `json:"fineRecordId"`
}

func (s *BooksService) List(ctx context.Context) ([]entities.Book, error) {
	var out envelope[[]entities.Book]
	err := s.client.do(ctx, http.MethodGet, "/books", nil, &out)
	return out.Data, err
}

func (s *BooksService) Search(ctx context.Context, field SearchField, query string) ([]entities.Book, error) {
	path := "/books/search/"
	if field != SearchAny {
		path += string(field) + "/"
	}
	var out envelope[[]entities.Book]
	err := s.client.do(ctx, http.MethodGet, path+url.PathEscape(query), nil, &out)
	return out.Data, err
}

func (s *BooksService) Get(ctx context.Context, bookID string) (*entities.Book, error) {
	var out entities.Book
	if err := s.client.do(ctx, http.MethodGet, "/books/"+url.PathEscape(bookID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BooksService) Add(ctx context.Context, in BookInput) (*Message, error) {
	var out Message
	if err := s.client.do(ctx, http.MethodPost, "/books", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BooksService) Update(ctx context.Context, bookID string, in BookInput) (*Message, error) {
	var out Message
	if err := s.client.do(ctx, http.MethodPut, "/books/"+url.PathEscape(bookID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BooksService) Delete(ctx context.Context, bookID string) (*Message, error) {
	var out Message
	if err := s.client.do(ctx, http.MethodDelete, "/books/"+url.PathEscape(bookID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Borrow lends bookID to the caller, or to borrowerID when the caller is an administrator.
func (s *BooksService) Borrow(ctx context.Context, bookID, borrowerID string) (*BorrowResult, error) {
	body := map[string]string{"book_id": bookID}
	if borrowerID != "" {
		body["borrower_id"] = borrowerID
	}

	var out BorrowResult
	if err := s.client.do(ctx, http.MethodPost, "/books/borrow", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *BooksService) Return(ctx context.Context, recordID uint) (*ReturnResult, error) {
	var out ReturnResult
	if err := s.client.do(ctx, http.MethodPost, "/books/return", map[string]uint{"record_id": recordID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
