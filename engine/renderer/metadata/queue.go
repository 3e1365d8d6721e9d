package metadata

/**
 * @brief Identifies one of the device queues work can be submitted to.
 * Queues are always referenced by kind, never by pointer identity.
 */
type QueueKind uint8

const (
	/** @brief Graphics queue, also capable of compute and transfer. */
	QueueGraphics QueueKind = iota
	/** @brief Asynchronous compute queue. */
	QueueCompute
	/** @brief Dedicated transfer (copy) queue. */
	QueueTransfer
)

/** @brief The number of queue kinds. Arrays indexed by QueueKind use this length. */
const QueueCount = 3

func (q QueueKind) IsValid() bool {
	return q < QueueCount
}

func (q QueueKind) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// AllQueues lists every queue kind in index order.
var AllQueues = [QueueCount]QueueKind{QueueGraphics, QueueCompute, QueueTransfer}
