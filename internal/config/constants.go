package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	ServerShutdownTimeout = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Exam assembly: upper bound for one end-to-end assembly including
	// the history merge and counter increment
	AssemblyTimeout = 15 * time.Second
)

// Server defaults
const (
	DefaultServerPort = "3009"
)

// Database pool defaults
const (
	DefaultMaxOpenConns = 25
	DefaultMaxIdleConns = 5
)

// Exam identifier defaults. Counter value 7 renders as EXM007; the number
// grows past the pad width without truncation.
const (
	DefaultExamIDPrefix    = "EXM"
	DefaultExamIDPadWidth  = 3
	DefaultExamCounterName = "exams"
)

// Selection defaults
const (
	// MinCategoryQuota is the floor any configured quota is normalized to
	MinCategoryQuota = 1
)
