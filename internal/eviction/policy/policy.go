package policy

// Policy defines the interface for checking if eviction is needed.
type Policy interface {
	// Exceeded reports whether a directory holding count eligible files
	// must give one of them up this cycle. limit is the file limit read
	// once at the start of the cycle.
	Exceeded(count int, limit uint32) (bool, error)
}
