// Package logging provides structured logging utilities for the mailpilot server.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization)
//   - Consistent attribute naming across the codebase
//   - Logger adapter interface for flexibility
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithTool(slog.Default(), "gmail_search")
//	logger.Info("dispatching invocation",
//	    logging.Session(sessionID),
//	    logging.Request(requestID))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("message matched",
//	    logging.UserHash(msg.Sender))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - Sender emails are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
