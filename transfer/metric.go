package transfer

// Metric is a weight of a group of transfer operations.
type Metric struct {
	Num  uint32
	Size uint64
}
