// Package auth provides authentication and authorization for the library API.
//
// Callers authenticate with a signed bearer token issued at login:
//
//	Authorization: Bearer <token>
//
// The token carries the borrower's uid, name and identity type and expires after
// AUTH_TOKEN_TTL (24h by default). The identity type doubles as the privilege
// level: 3 and above are administrators, 5 is a super administrator.
//
// # Configuration
//
//	JWT_SECRET=<random string>          # HS256 signing key; a dev key is used when empty
//	AUTH_TOKEN_TTL=24h                  # Token lifetime
//	AUTH_BCRYPT_COST=10                 # bcrypt cost factor for stored passwords
//	AUTH_MAX_LOGIN_ATTEMPTS=5           # Failed logins before lockout
//	REDIS_ADDR=localhost:6379           # Share logout revocations across instances
//
// # Usage
//
// Wire the authenticator once and guard routes:
//
//	codec := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
//	authenticator := auth.NewAuthenticator(codec, auth.NewMemoryDenylist(), logger)
//	router.Use(authenticator.Handler())
//	admin := router.Group("/api/admin", authenticator.RequirePrivilege(entities.IdentityAdmin))
//
// Extract the caller in handlers:
//
//	identity := auth.GetIdentity(c) // nil when anonymous
//	if !auth.CanActFor(c, uid) { ... }
package auth
