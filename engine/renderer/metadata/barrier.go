package metadata

import "strings"

type BarrierFlags uint8

const (
	/** @brief First access of the subresource in this frame; previous contents may be discarded if the state was undefined. */
	BarrierFirstAccessInSubmission BarrierFlags = 1 << 0
	/** @brief Acquire half of a queue ownership transfer, recorded on the destination queue. */
	BarrierQueueOwnershipAcquire BarrierFlags = 1 << 1
	/** @brief Release half of a queue ownership transfer, recorded on the source queue. */
	BarrierQueueOwnershipRelease BarrierFlags = 1 << 2
	/** @brief First half of a split barrier. */
	BarrierBegin BarrierFlags = 1 << 3
	/** @brief Second half of a split barrier. */
	BarrierEnd BarrierFlags = 1 << 4
)

func (f BarrierFlags) String() string {
	var parts []string
	if f&BarrierFirstAccessInSubmission != 0 {
		parts = append(parts, "first-access")
	}
	if f&BarrierQueueOwnershipAcquire != 0 {
		parts = append(parts, "acquire")
	}
	if f&BarrierQueueOwnershipRelease != 0 {
		parts = append(parts, "release")
	}
	if f&BarrierBegin != 0 {
		parts = append(parts, "begin")
	}
	if f&BarrierEnd != 0 {
		parts = append(parts, "end")
	}
	return strings.Join(parts, "|")
}
