package metadata

import "strings"

/**
 * @brief Logical access state of a resource. Several read states may be
 * combined into one mask; a write state is always used alone.
 */
type ResourceState uint32

const (
	StateUndefined        ResourceState = 0
	StateVertexBuffer     ResourceState = 1 << 0
	StateIndexBuffer      ResourceState = 1 << 1
	StateConstantBuffer   ResourceState = 1 << 2
	StateIndirectArgument ResourceState = 1 << 3
	StateShaderResource   ResourceState = 1 << 4
	StateUnorderedAccess  ResourceState = 1 << 5
	StateRenderTarget     ResourceState = 1 << 6
	StateDepthWrite       ResourceState = 1 << 7
	StateDepthRead        ResourceState = 1 << 8
	StateCopySource       ResourceState = 1 << 9
	StateCopyDest         ResourceState = 1 << 10
	StatePresent          ResourceState = 1 << 11
	StateHostRead         ResourceState = 1 << 12
	StateHostWrite        ResourceState = 1 << 13
)

const (
	imageReadStates  = StateShaderResource | StateDepthRead
	bufferReadStates = StateShaderResource | StateConstantBuffer | StateVertexBuffer |
		StateIndexBuffer | StateIndirectArgument | StateCopySource
	writeStates = StateUnorderedAccess | StateRenderTarget | StateDepthWrite |
		StateCopyDest | StateHostWrite
)

var stateNames = []struct {
	state ResourceState
	name  string
}{
	{StateVertexBuffer, "vertex"},
	{StateIndexBuffer, "index"},
	{StateConstantBuffer, "constant"},
	{StateIndirectArgument, "indirect"},
	{StateShaderResource, "shader-resource"},
	{StateUnorderedAccess, "unordered-access"},
	{StateRenderTarget, "render-target"},
	{StateDepthWrite, "depth-write"},
	{StateDepthRead, "depth-read"},
	{StateCopySource, "copy-src"},
	{StateCopyDest, "copy-dst"},
	{StatePresent, "present"},
	{StateHostRead, "host-read"},
	{StateHostWrite, "host-write"},
}

func (s ResourceState) String() string {
	if s == StateUndefined {
		return "undefined"
	}
	var parts []string
	for _, n := range stateNames {
		if s&n.state != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// IsReadOnly reports whether s only contains states that can be shared by
// several consumers without a barrier between them.
func (s ResourceState) IsReadOnly(isImage bool) bool {
	if s == StateUndefined {
		return false
	}
	if isImage {
		return s&^imageReadStates == 0
	}
	return s&^bufferReadStates == 0
}

// HasWrite reports whether s contains any writing state.
func (s ResourceState) HasWrite() bool {
	return s&writeStates != 0
}

// ReadCombineClass groups read states that can be merged into a single
// combined state. Images in depth-read must stay in the depth layout, so
// they only merge with other depth reads. Zero means "not combinable".
func (s ResourceState) ReadCombineClass(isImage bool) uint8 {
	if !s.IsReadOnly(isImage) {
		return 0
	}
	if isImage && s&StateDepthRead != 0 {
		return 2
	}
	return 1
}

/** @brief Pipeline stages an access happens in. */
type PipelineStage uint32

const (
	StageNone                  PipelineStage = 0
	StageDrawIndirect          PipelineStage = 1 << 0
	StageVertexInput           PipelineStage = 1 << 1
	StageVertexShader          PipelineStage = 1 << 2
	StageFragmentShader        PipelineStage = 1 << 3
	StageEarlyFragmentTests    PipelineStage = 1 << 4
	StageLateFragmentTests     PipelineStage = 1 << 5
	StageColorAttachmentOutput PipelineStage = 1 << 6
	StageComputeShader         PipelineStage = 1 << 7
	StageTransfer              PipelineStage = 1 << 8
	StageHost                  PipelineStage = 1 << 9
	StageAllCommands           PipelineStage = 1 << 10
)

/** @brief A state paired with the stages that access the resource in that state. */
type StateAndStage struct {
	State  ResourceState
	Stages PipelineStage
}

// Merge returns the union of both states and stage masks.
func (s StateAndStage) Merge(o StateAndStage) StateAndStage {
	return StateAndStage{State: s.State | o.State, Stages: s.Stages | o.Stages}
}
