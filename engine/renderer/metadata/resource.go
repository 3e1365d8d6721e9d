package metadata

/** @brief Discriminates the two resource variants. */
type ResourceKind uint8

const (
	ResourceKindImage ResourceKind = iota
	ResourceKindBuffer
)

func (k ResourceKind) String() string {
	if k == ResourceKindImage {
		return "image"
	}
	return "buffer"
}

/**
 * @brief Caller-owned record carrying the queue and state of an imported
 * resource across frames. The frame graph reads it on first use and writes
 * it back on last use.
 */
type ExternalState struct {
	Queue QueueKind
	State StateAndStage
}
