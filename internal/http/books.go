package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/audit"
	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/database/books"
	"github.com/libdesk/libdesk/internal/procedures"
)

// BooksController serves the catalogue.
type BooksController struct {
	procs  procedures.Procedures
	audit  *audit.Service
	logger logrus.FieldLogger
}

func NewBooksController(cfg RouterConfig) *BooksController {
	return &BooksController{procs: cfg.Procedures, audit: cfg.Audit, logger: cfg.Logger}
}

// GetAllBooks returns the whole catalogue.
// GET /api/books
func (bc *BooksController) GetAllBooks(c *gin.Context) {
	list, err := bc.procs.GetAllBooks(c.Request.Context())
	if err != nil {
		respondEnvelopeError(c, bc.logger, err, "get all books", "failed to get book list")
		return
	}
	respondData(c, nonNil(list))
}

// Search matches the query against title, ISBN and author.
// GET /api/books/search/:query
func (bc *BooksController) Search(c *gin.Context) {
	bc.search(c, books.FieldAny)
}

// SearchBy returns a handler restricted to one field.
// GET /api/books/search/{name,author,tag,publisher,isbn}/:query
func (bc *BooksController) SearchBy(field books.SearchField) gin.HandlerFunc {
	return func(c *gin.Context) {
		bc.search(c, field)
	}
}

func (bc *BooksController) search(c *gin.Context, field books.SearchField) {
	list, err := bc.procs.SearchBooks(c.Request.Context(), field, c.Param("query"))
	if errors.Is(err, books.ErrUnknownField) {
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		respondEnvelopeError(c, bc.logger, err, "search books", "failed to search books")
		return
	}
	respondData(c, nonNil(list))
}

// GetBook returns a single book.
// GET /api/books/:id
func (bc *BooksController) GetBook(c *gin.Context) {
	res, err := bc.procs.GetBookByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondInternalError(c, bc.logger, err, "get book")
		return
	}
	if !res.OK() {
		respondResult(c, res.Result)
		return
	}
	c.JSON(http.StatusOK, res.Book)
}

// CreateBook adds a book to the catalogue.
// POST /api/books
func (bc *BooksController) CreateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	input := req.input()
	if input.BookID == "" || input.Title == "" {
		respondBadRequest(c, procedures.MsgBookFields)
		return
	}

	res, err := bc.procs.AddBook(c.Request.Context(), input)
	if err != nil {
		respondInternalError(c, bc.logger, err, "add book")
		return
	}
	if !res.OK() {
		respondResult(c, res)
		return
	}

	bc.audit.LogAdmin(auth.GetUserID(c), "add_book", input.BookID, nil)
	respondCreated(c, SuccessResponse{Message: res.Message})
}

// UpdateBook replaces a book's details.
// PUT /api/books/:id
func (bc *BooksController) UpdateBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	bookID := c.Param("id")
	res, err := bc.procs.UpdateBook(c.Request.Context(), bookID, req.input())
	if err != nil {
		respondInternalError(c, bc.logger, err, "update book")
		return
	}
	if !res.OK() {
		respondResult(c, res)
		return
	}

	bc.audit.LogAdmin(auth.GetUserID(c), "update_book", bookID, nil)
	c.JSON(http.StatusOK, gin.H{"message": res.Message, "affectedRows": 1})
}

// DeleteBook removes a book without outstanding loans.
// DELETE /api/books/:id
func (bc *BooksController) DeleteBook(c *gin.Context) {
	bookID := c.Param("id")
	res, err := bc.procs.DeleteBook(c.Request.Context(), bookID)
	if err != nil {
		respondInternalError(c, bc.logger, err, "delete book")
		return
	}
	if !res.OK() {
		respondResult(c, res)
		return
	}

	bc.audit.LogAdmin(auth.GetUserID(c), "delete_book", bookID, nil)
	c.JSON(http.StatusOK, gin.H{"message": res.Message, "affectedRows": 1})
}
