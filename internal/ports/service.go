package ports

// Service is a long-running component started and stopped by the daemon
type Service interface {
	// Start starts the service; it must not block
	Start() error

	// Stop stops the service
	Stop() error
}
