// Package database provides the data access layer for the library.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Driver selection, pool limits, migrations, user type seeding
//	├── borrowers/       # Borrower profiles, admin status changes, cascading delete
//	├── books/           # Book listing and search
//	├── circulation/     # Borrowing records, fines, login logs
//	└── audit/           # Audit event persistence
//
// # Using Sub-packages
//
// The gateway is built once at startup and its *gorm.DB is handed to every repository:
//
//	db, err := database.NewDatabase(cfg.Database, logger)
//	defer db.Close()
//
//	borrowersRepo := borrowers.NewRepository(db.DB)
//	booksRepo := books.NewRepository(db.DB)
//
// Mutations that carry business rules (registration, login, borrow, return, book
// maintenance) live in the procedures package, not here.
package database
