package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/audit"
	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/database/borrowers"
	"github.com/libdesk/libdesk/internal/database/circulation"
	"github.com/libdesk/libdesk/internal/entities"
	"github.com/libdesk/libdesk/internal/procedures"
)

// UserSummary is the user block of a login response.
type UserSummary struct {
	UID              string                   `json:"uid"`
	Name             string                   `json:"name"`
	IdentityType     entities.IdentityType    `json:"identity_type"`
	IdentityTypeName string                   `json:"identity_type_name"`
	BorrowingStatus  entities.BorrowingStatus `json:"borrowing_status"`
}

type LoginResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    UserSummary `json:"user"`
}

// UsersController serves registration, login and the caller's own account.
type UsersController struct {
	procs       procedures.Procedures
	borrowers   BorrowerStore
	circulation CirculationStore
	codec       *auth.TokenCodec
	authn       *auth.Authenticator
	audit       *audit.Service
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewUsersController(cfg RouterConfig) *UsersController {
	return &UsersController{
		procs:       cfg.Procedures,
		borrowers:   cfg.Borrowers,
		circulation: cfg.Circulation,
		codec:       cfg.TokenCodec,
		authn:       cfg.Authenticator,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		now:         cfg.clock(),
	}
}

// Register creates a student or staff account.
// POST /api/users/register
func (uc *UsersController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	reg, typed := req.registration()
	if reg.UID == "" || reg.Name == "" || reg.Password == "" {
		respondBadRequest(c, procedures.MsgRegistrationFields)
		return
	}
	if !typed {
		respondBadRequest(c, procedures.MsgIdentityType)
		return
	}

	res, err := uc.procs.RegisterUser(c.Request.Context(), reg)
	if err != nil {
		respondInternalError(c, uc.logger, err, "register user")
		return
	}
	if !res.OK() {
		respondResult(c, res)
		return
	}

	uc.audit.LogAuth(reg.UID, "register", c.ClientIP(), c.Request.UserAgent(), true)
	respondCreated(c, SuccessResponse{Message: res.Message})
}

// Login verifies credentials and issues a bearer token.
// POST /api/users/login
func (uc *UsersController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	uid := req.userID()
	if uid == "" || req.Password == "" {
		respondBadRequest(c, "uid and password are required")
		return
	}

	ip := c.ClientIP()
	res, err := uc.procs.Login(c.Request.Context(), uid, req.Password)
	if err != nil {
		respondInternalError(c, uc.logger, err, "login")
		return
	}
	if !res.OK() {
		uc.audit.LogAuth(uid, "login_failed", ip, c.Request.UserAgent(), false)
		respondResult(c, res.Result)
		return
	}
	token, err := uc.codec.Issue(uid, res.Name, res.IdentityType)
	if err != nil {
		respondInternalError(c, uc.logger, err, "issue token")
		return
	}

	uc.audit.LogAuth(uid, "login", ip, c.Request.UserAgent(), true)
	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Message: res.Message,
		Token:   token,
		User: UserSummary{
			UID:              uid,
			Name:             res.Name,
			IdentityType:     res.IdentityType,
			IdentityTypeName: res.TypeName,
			BorrowingStatus:  res.BorrowingStatus,
		},
	})
}

// Logout revokes the caller's token.
// POST /api/users/logout
func (uc *UsersController) Logout(c *gin.Context) {
	if err := uc.authn.Revoke(c); err != nil {
		respondEnvelopeError(c, uc.logger, err, "logout", "failed to log out")
		return
	}
	uc.audit.LogAuth(auth.GetUserID(c), "logout", c.ClientIP(), c.Request.UserAgent(), true)
	c.JSON(http.StatusOK, EnvelopeResponse{Success: true, Message: "logged out"})
}

// Info returns the caller's profile.
// GET /api/users/info
func (uc *UsersController) Info(c *gin.Context) {
	profile, err := uc.borrowers.GetProfile(c.Request.Context(), auth.GetUserID(c))
	if errors.Is(err, borrowers.ErrNotFound) {
		c.JSON(http.StatusNotFound, EnvelopeResponse{Success: false, Error: procedures.MsgUserNotFound})
		return
	}
	if err != nil {
		respondEnvelopeError(c, uc.logger, err, "user info", "failed to get user info")
		return
	}
	respondData(c, profile)
}

// CurrentRecords lists the caller's outstanding loans.
// GET /api/users/borrowing-records/current
func (uc *UsersController) CurrentRecords(c *gin.Context) {
	records, err := uc.circulation.CurrentRecords(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondEnvelopeError(c, uc.logger, err, "current records", "failed to get current borrowing records")
		return
	}
	respondData(c, nonNil(records))
}

// AllRecords lists the caller's whole loan history.
// GET /api/users/borrowing-records/all
func (uc *UsersController) AllRecords(c *gin.Context) {
	records, err := uc.circulation.RecordsForBorrower(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondEnvelopeError(c, uc.logger, err, "all records", "failed to get borrowing records")
		return
	}
	respondData(c, nonNil(records))
}

// Fines lists the caller's fines, unpaid first.
// GET /api/users/fine-records
func (uc *UsersController) Fines(c *gin.Context) {
	fines, err := uc.circulation.FinesForBorrower(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondEnvelopeError(c, uc.logger, err, "fines", "failed to get fine records")
		return
	}
	respondData(c, nonNil(fines))
}

// PayFine settles one of the caller's fines.
// POST /api/users/fine-records/pay
func (uc *UsersController) PayFine(c *gin.Context) {
	var req payFineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: "invalid request body"})
		return
	}
	fineID, ok := req.fineID()
	if !ok {
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: "fine_id is required"})
		return
	}

	uid := auth.GetUserID(c)
	err := uc.circulation.PayFine(c.Request.Context(), uid, fineID, uc.now())
	switch {
	case errors.Is(err, circulation.ErrFineNotFound):
		c.JSON(http.StatusNotFound, EnvelopeResponse{Success: false, Error: err.Error()})
		return
	case errors.Is(err, circulation.ErrFineAlreadyPaid):
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: err.Error()})
		return
	case err != nil:
		respondEnvelopeError(c, uc.logger, err, "pay fine", "failed to pay fine")
		return
	}

	uc.audit.LogLoan(uid, "pay_fine", 0, "", map[string]any{"fine_id": fineID})
	c.JSON(http.StatusOK, EnvelopeResponse{Success: true, Message: "fine paid"})
}

// PayAllFines settles every unpaid fine of the caller.
// POST /api/users/fine-records/pay-all
func (uc *UsersController) PayAllFines(c *gin.Context) {
	uid := auth.GetUserID(c)
	paid, err := uc.circulation.PayAllFines(c.Request.Context(), uid, uc.now())
	if errors.Is(err, circulation.ErrNoUnpaidFines) {
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		respondEnvelopeError(c, uc.logger, err, "pay all fines", "failed to pay fines")
		return
	}

	uc.audit.LogLoan(uid, "pay_all_fines", 0, "", map[string]any{"paid": paid})
	c.JSON(http.StatusOK, EnvelopeResponse{
		Success: true,
		Message: strconv.FormatInt(paid, 10) + " fine(s) paid",
		Data:    gin.H{"paid": paid},
	})
}

// requireSelfOrAdmin answers 403 unless the caller owns uid or is an administrator.
func requireSelfOrAdmin(c *gin.Context, uid string) bool {
	if !auth.CanActFor(c, uid) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: auth.MsgInsufficientAccess})
		return false
	}
	return true
}

// GetUser returns a borrower profile.
// GET /api/users/:id
func (uc *UsersController) GetUser(c *gin.Context) {
	uid := c.Param("id")
	if !requireSelfOrAdmin(c, uid) {
		return
	}

	res, err := uc.procs.GetUserByID(c.Request.Context(), uid)
	if err != nil {
		respondInternalError(c, uc.logger, err, "get user")
		return
	}
	if !res.OK() {
		respondResult(c, res.Result)
		return
	}
	c.JSON(http.StatusOK, res.Profile)
}

// UpdateUser changes a borrower's name and phone.
// PUT /api/users/:id
func (uc *UsersController) UpdateUser(c *gin.Context) {
	uid := c.Param("id")
	if !requireSelfOrAdmin(c, uid) {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	res, err := uc.procs.UpdateUser(c.Request.Context(), uid, req.Name, req.Phone)
	if err != nil {
		respondInternalError(c, uc.logger, err, "update user")
		return
	}
	if !res.OK() {
		respondResult(c, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": res.Message, "affectedRows": 1})
}

// UserRecords lists a borrower's loans.
// GET /api/users/:id/borrowing-records
func (uc *UsersController) UserRecords(c *gin.Context) {
	uid := c.Param("id")
	if !requireSelfOrAdmin(c, uid) {
		return
	}
	records, err := uc.circulation.RecordsForBorrower(c.Request.Context(), uid)
	if err != nil {
		respondInternalError(c, uc.logger, err, "user records")
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

// UserFines lists a borrower's fines.
// GET /api/users/:id/fine-records
func (uc *UsersController) UserFines(c *gin.Context) {
	uid := c.Param("id")
	if !requireSelfOrAdmin(c, uid) {
		return
	}
	fines, err := uc.circulation.FinesForBorrower(c.Request.Context(), uid)
	if err != nil {
		respondInternalError(c, uc.logger, err, "user fines")
		return
	}
	c.JSON(http.StatusOK, nonNil(fines))
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
