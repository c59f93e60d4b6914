package mysql

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("netq mysql: db is required")
	// ErrExecutorRequired is returned when enqueue is called with a nil executor.
	ErrExecutorRequired = errors.New("netq mysql: executor is required")
	// ErrPrefixRequired is returned when the table prefix is empty.
	ErrPrefixRequired = errors.New("netq mysql: table prefix is required")
	// ErrInvalidPrefix is returned when the table prefix has disallowed characters.
	ErrInvalidPrefix = errors.New("netq mysql: invalid table prefix")
	// ErrSignalRequired is returned when a wake watcher has nothing to signal.
	ErrSignalRequired = errors.New("netq mysql: wake signal is required")
	// ErrCleanupLimitInvalid is returned when cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("netq mysql: cleanup limit must be non-negative")
	// ErrHeartbeatTimeoutInvalid is returned when the heartbeat timeout is negative.
	ErrHeartbeatTimeoutInvalid = errors.New("netq mysql: heartbeat timeout must be non-negative")
	// ErrInstanceRequired is returned when a heartbeat has no instance name.
	ErrInstanceRequired = errors.New("netq mysql: worker instance is required")
)
