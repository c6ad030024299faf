package http

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/libdesk/libdesk/internal/audit"
	"github.com/libdesk/libdesk/internal/auth"
	"github.com/libdesk/libdesk/internal/database"
	"github.com/libdesk/libdesk/internal/procedures"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Procedures  procedures.Procedures
	Database    *database.Database
	Borrowers   BorrowerStore
	Circulation CirculationStore
	Audit       *audit.Service
	Logger      logrus.FieldLogger

	// Authentication
	TokenCodec    *auth.TokenCodec
	Authenticator *auth.Authenticator
	RateLimiter   *auth.RateLimiter // optional
	EnableHSTS    bool

	// Browser origins allowed by CORS. Empty or "*" allows any origin.
	CORSOrigins []string

	// Application info
	Version string

	// Clock used for loan dates and fine payments. Defaults to time.Now.
	Now func() time.Time
}

func (cfg RouterConfig) clock() func() time.Time {
	if cfg.Now != nil {
		return cfg.Now
	}
	return time.Now
}
