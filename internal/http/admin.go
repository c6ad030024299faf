package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/audit"
	"github.com/libdesk/libdesk/internal/auth"
	dbaudit "github.com/libdesk/libdesk/internal/database/audit"
	"github.com/libdesk/libdesk/internal/database/borrowers"
	"github.com/libdesk/libdesk/internal/entities"
)

const defaultLoginLogLimit = 100

var errInsufficientRank = errors.New("target outranks caller")

// AdminController serves the administrator console.
type AdminController struct {
	borrowers   BorrowerStore
	circulation CirculationStore
	audit       *audit.Service
	logger      logrus.FieldLogger
}

func NewAdminController(cfg RouterConfig) *AdminController {
	return &AdminController{
		borrowers:   cfg.Borrowers,
		circulation: cfg.Circulation,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
	}
}

// Users lists every borrower, newest first.
// GET /api/admin/users
func (ac *AdminController) Users(c *gin.Context) {
	profiles, err := ac.borrowers.ListProfiles(c.Request.Context())
	if err != nil {
		respondEnvelopeError(c, ac.logger, err, "admin users", "failed to get users")
		return
	}
	respondData(c, nonNil(profiles))
}

// BorrowingRecords lists every borrowing record with book and borrower names.
// GET /api/admin/borrowing-records
func (ac *AdminController) BorrowingRecords(c *gin.Context) {
	records, err := ac.circulation.ListRecords(c.Request.Context())
	if err != nil {
		respondEnvelopeError(c, ac.logger, err, "admin records", "failed to get borrowing records")
		return
	}
	respondData(c, nonNil(records))
}

// FineRecords lists every fine.
// GET /api/admin/fine-records
func (ac *AdminController) FineRecords(c *gin.Context) {
	fines, err := ac.circulation.ListFines(c.Request.Context())
	if err != nil {
		respondEnvelopeError(c, ac.logger, err, "admin fines", "failed to get fine records")
		return
	}
	respondData(c, nonNil(fines))
}

// LoginLogs lists recent logins.
// GET /api/admin/login-logs?limit=100
func (ac *AdminController) LoginLogs(c *gin.Context) {
	limit := queryInt(c, "limit", defaultLoginLogLimit)
	if limit == 0 {
		limit = defaultLoginLogLimit
	}
	logs, err := ac.circulation.ListLoginLogs(c.Request.Context(), limit)
	if err != nil {
		respondEnvelopeError(c, ac.logger, err, "admin login logs", "failed to get login logs")
		return
	}
	respondData(c, nonNil(logs))
}

// AuditEvents pages through the audit trail.
// GET /api/admin/audit-events?user_id=&type=&limit=&offset=
func (ac *AdminController) AuditEvents(c *gin.Context) {
	filter := dbaudit.Filter{
		UserID:    c.Query("user_id"),
		EventType: entities.AuditEventType(c.Query("type")),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	events, total, err := ac.audit.GetEvents(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, ac.logger, err, "audit events")
		return
	}

	totalPages := (int(total) + filter.Limit - 1) / filter.Limit
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       nonNil(events),
		Total:      total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		HasMore:    int64(filter.Offset+len(events)) < total,
		TotalPages: totalPages,
	})
}

// ManageUser activates, suspends or deletes a borrower ranked below the caller.
// Only super admins may act on other administrators.
// POST /api/admin/manage-user
func (ac *AdminController) ManageUser(c *gin.Context) {
	var req manageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	uid := req.target()
	if uid == "" {
		respondBadRequest(c, "uid is required")
		return
	}

	ctx := c.Request.Context()
	actor := auth.GetUserID(c)
	action := strings.ToLower(strings.TrimSpace(req.Action))

	switch action {
	case "activate", "suspend":
	case "delete":
		if uid == actor {
			respondBadRequest(c, "administrators cannot delete their own account")
			return
		}
	default:
		respondBadRequest(c, "invalid action")
		return
	}

	target, err := ac.borrowers.GetProfile(ctx, uid)
	if errors.Is(err, borrowers.ErrNotFound) {
		c.JSON(http.StatusNotFound, EnvelopeResponse{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		respondEnvelopeError(c, ac.logger, err, "manage user", "failed to manage user")
		return
	}
	if !auth.CanManage(auth.GetIdentity(c).IdentityType, target.IdentityType) {
		ac.audit.LogAdmin(actor, action+"_user", uid, errInsufficientRank)
		c.JSON(http.StatusForbidden, EnvelopeResponse{Success: false, Error: auth.MsgInsufficientAccess})
		return
	}

	var message string
	switch action {
	case "activate":
		err = ac.borrowers.SetStatus(ctx, uid, entities.BorrowingActive)
		message = "user activated"
	case "suspend":
		err = ac.borrowers.SetStatus(ctx, uid, entities.BorrowingSuspended)
		message = "user suspended"
	case "delete":
		err = ac.borrowers.DeleteCascade(ctx, uid)
		message = "user deleted"
	}

	ac.audit.LogAdmin(actor, action+"_user", uid, err)
	if errors.Is(err, borrowers.ErrNotFound) {
		c.JSON(http.StatusNotFound, EnvelopeResponse{Success: false, Error: err.Error()})
		return
	}
	if err != nil {
		respondEnvelopeError(c, ac.logger, err, "manage user", "failed to manage user")
		return
	}
	c.JSON(http.StatusOK, EnvelopeResponse{Success: true, Message: message})
}

// ManageAdmin promotes a borrower to administrator or demotes one back.
// POST /api/admin/manage-admin
func (ac *AdminController) ManageAdmin(c *gin.Context) {
	var req manageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	uid := req.target()
	if uid == "" {
		respondBadRequest(c, "uid is required")
		return
	}

	ctx := c.Request.Context()
	action := strings.ToLower(strings.TrimSpace(req.Action))

	var (
		err     error
		message string
	)
	switch action {
	case "promote":
		err = ac.borrowers.Promote(ctx, uid)
		message = "user promoted to administrator"
	case "demote":
		err = ac.borrowers.Demote(ctx, uid)
		message = "administrator demoted"
	default:
		respondBadRequest(c, "invalid action")
		return
	}

	ac.audit.LogAdmin(auth.GetUserID(c), action+"_admin", uid, err)
	switch {
	case errors.Is(err, borrowers.ErrNotFound):
		c.JSON(http.StatusNotFound, EnvelopeResponse{Success: false, Error: err.Error()})
	case errors.Is(err, borrowers.ErrAlreadyAdmin),
		errors.Is(err, borrowers.ErrNotAdmin),
		errors.Is(err, borrowers.ErrSuperAdmin):
		c.JSON(http.StatusBadRequest, EnvelopeResponse{Success: false, Error: err.Error()})
	case err != nil:
		respondEnvelopeError(c, ac.logger, err, "manage admin", "failed to manage admin")
	default:
		c.JSON(http.StatusOK, EnvelopeResponse{Success: true, Message: message})
	}
}
