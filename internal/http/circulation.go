package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/audit"
	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/database/circulation"
	"github.com/libdesk/libdesk/internal/procedures"
)

// Messages for the circulation endpoints.
const (
	MsgBookIDRequired   = "book id is required"
	MsgRecordIDRequired = "record id is required"
)

type ReturnResponse struct {
	Message      string  `json:"message"`
	OverdueDays  int     `json:"overdueDays"`
	FineAmount   float64 `json:"fineAmount"`
	FineRecordID *uint   `json:"fineRecordId"`
}

// CirculationController serves borrowing and returning.
type CirculationController struct {
	procs       procedures.Procedures
	circulation CirculationStore
	audit       *audit.Service
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewCirculationController(cfg RouterConfig) *CirculationController {
	return &CirculationController{
		procs:       cfg.Procedures,
		circulation: cfg.Circulation,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		now:         cfg.clock(),
	}
}

// Borrow lends a book to the caller. An administrator may borrow on behalf of
// another borrower through borrower_id.
// POST /api/books/borrow
func (cc *CirculationController) Borrow(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: "invalid request body"})
		return
	}

	bookID := req.bookID()
	if bookID == "" {
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: MsgBookIDRequired})
		return
	}

	caller := auth.GetUserID(c)
	borrowerID := caller
	if requested := req.BorrowerID.String(); requested != "" && requested != caller {
		if !auth.CanActFor(c, requested) {
			c.JSON(http.StatusForbidden, EnvelopeResponse{Success: false, Error: auth.MsgInsufficientAccess})
			return
		}
		borrowerID = requested
	}

	res, err := cc.procs.BorrowBook(c.Request.Context(), borrowerID, bookID, cc.now())
	if err != nil {
		respondEnvelopeError(c, cc.logger, err, "borrow book", "failed to borrow book")
		return
	}
	if !res.OK() {
		c.JSON(loanStatus(res.Result), EnvelopeResponse{Success: false, Error: res.Message})
		return
	}

	cc.audit.LogLoan(borrowerID, "borrow", res.RecordID, bookID, map[string]any{"actor": caller})
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  res.Message,
		"recordId": res.RecordID,
	})
}

// Return closes a loan owned by the caller, or any loan for an administrator.
// POST /api/books/return
func (cc *CirculationController) Return(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	recordID, ok := req.recordID()
	if !ok {
		respondBadRequest(c, MsgRecordIDRequired)
		return
	}

	record, err := cc.circulation.GetRecord(c.Request.Context(), recordID)
	if errors.Is(err, circulation.ErrRecordNotFound) {
		respondBadRequest(c, procedures.MsgRecordNotFound)
		return
	}
	if err != nil {
		respondInternalError(c, cc.logger, err, "load borrowing record")
		return
	}
	if !requireSelfOrAdmin(c, record.BorrowerID) {
		return
	}

	res, err := cc.procs.ReturnBook(c.Request.Context(), recordID, cc.now())
	if err != nil {
		respondInternalError(c, cc.logger, err, "return book")
		return
	}
	if !res.OK() {
		respondError(c, loanStatus(res.Result), res.Message)
		return
	}

	cc.audit.LogLoan(record.BorrowerID, "return", recordID, record.BookID, map[string]any{
		"actor":        auth.GetUserID(c),
		"overdue_days": res.OverdueDays,
		"fine_amount":  res.FineAmount,
	})
	c.JSON(http.StatusOK, ReturnResponse{
		Message:      res.Message,
		OverdueDays:  res.OverdueDays,
		FineAmount:   res.FineAmount,
		FineRecordID: res.FineRecordID,
	})
}

// loanStatus maps a rejected borrow or return. Every rule violation, unknown
// book or record included, is a 400 carrying the procedure's message.
func loanStatus(r procedures.Result) int {
	if r.IsDomainError() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Records lists every borrowing record.
// GET /api/borrow/records
func (cc *CirculationController) Records(c *gin.Context) {
	records, err := cc.circulation.ListRecords(c.Request.Context())
	if err != nil {
		respondInternalError(c, cc.logger, err, "list records")
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

// Fines lists every fine record.
// GET /api/borrow/fines
func (cc *CirculationController) Fines(c *gin.Context) {
	fines, err := cc.circulation.ListFines(c.Request.Context())
	if err != nil {
		respondInternalError(c, cc.logger, err, "list fines")
		return
	}
	c.JSON(http.StatusOK, nonNil(fines))
}
