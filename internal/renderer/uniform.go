package renderer

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/core/common"

	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

// UniformBufferObject is what the vertex shader reads at binding 0.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

var uniformSize = binary.Size(UniformBufferObject{})

// UniformStrategy says how the uniform buffer reaches the device each frame.
type UniformStrategy int

const (
	// UniformStaged keeps the buffer device-local and copies through a
	// staging buffer.
	UniformStaged UniformStrategy = iota
	// UniformHostVisible maps the buffer and writes it directly once the
	// graphics queue is idle.
	UniformHostVisible
)

func (s UniformStrategy) String() string {
	switch s {
	case UniformStaged:
		return "staged"
	case UniformHostVisible:
		return "host-visible"
	}
	return "unknown"
}

// ComputeUniforms spins the model a quarter turn per second around Z, looking
// at it from (2,2,2).
func ComputeUniforms(seconds float64, width, height int) UniformBufferObject {
	timePeriod := float32(math.Mod(seconds, 4.0))

	ubo := UniformBufferObject{}
	ubo.Model = mgl32.HomogRotate3D(timePeriod*mgl32.DegToRad(90.0), mgl32.Vec3{0, 0, 1})
	ubo.View = mgl32.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1)

	aspectRatio := float32(1)
	if height > 0 {
		aspectRatio = float32(width) / float32(height)
	}

	near := 0.1
	far := 10.0
	fovy := float64(mgl32.DegToRad(45))
	fmn, f := far-near, 1./math.Tan(fovy/2.0)

	// Vulkan clip space has Y down and depth in [0,1]
	ubo.Proj = mgl32.Mat4{
		float32(f) / aspectRatio, 0, 0, 0,
		0, float32(-f), 0, 0,
		0, 0, float32(-far / fmn), -1,
		0, 0, float32(-(far * near) / fmn), 0,
	}
	return ubo
}

func (u UniformBufferObject) bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, &u)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeUniforms(data []byte) (UniformBufferObject, error) {
	var ubo UniformBufferObject
	err := binary.Read(bytes.NewReader(data[:uniformSize]), common.ByteOrder, &ubo)
	return ubo, err
}

func (r *Renderer) updateUniformBuffer(width, height int) error {
	ubo := ComputeUniforms(r.opts.Clock().Seconds(), width, height)
	data, err := ubo.bytes()
	if err != nil {
		return gpu.SubmissionError(err, "encode uniforms")
	}

	if r.opts.Uniforms == UniformHostVisible {
		// the previous frame may still be reading the buffer
		err = r.ctx.Device().QueueWaitIdle(r.ctx.GraphicsQueue())
		if err != nil {
			return gpu.SubmissionError(err, "wait for graphics queue")
		}
		return r.uniformBuffer.Write(0, data)
	}
	return r.stager.UploadBuffer(r.uniformBuffer, 0, data)
}

// ReadUniforms reads back the uniforms the last frame drew with.
func (r *Renderer) ReadUniforms() (UniformBufferObject, error) {
	var data []byte
	var err error
	if r.uniformBuffer.HostVisible() {
		data, err = r.uniformBuffer.Read(0, uniformSize)
	} else {
		data, err = r.stager.ReadBuffer(r.uniformBuffer)
	}
	if err != nil {
		return UniformBufferObject{}, err
	}
	return decodeUniforms(data)
}
