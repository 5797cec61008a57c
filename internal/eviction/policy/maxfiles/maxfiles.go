package maxfiles

// Policy triggers eviction when the directory holds more eligible files than the limit.
type Policy struct{}

func (p *Policy) Exceeded(count int, limit uint32) (bool, error) {
	return int64(count) > int64(limit), nil
}
