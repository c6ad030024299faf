package config

const (
	// DefaultPort matches the port the web front end expects.
	DefaultPort = 3000

	// DefaultDatabasePath is the default path for the SQLite library database
	DefaultDatabasePath = "./library.db"

	// DefaultTasksDatabasePath is the default path for the background task queue database
	DefaultTasksDatabasePath = "./library-tasks.db"
)
