package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/vulkan-renderer/internal/commands"
	"github.com/vkngwrapper/vulkan-renderer/internal/device"
	"github.com/vkngwrapper/vulkan-renderer/internal/gpu"
)

const stagingProperties = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

// Stager moves bytes between the host and device-local resources. Every
// transfer allocates its own staging buffer, waits for the copy to finish and
// destroys the staging buffer before returning.
type Stager struct {
	ctx  *device.Context
	pool *commands.Pool
}

func NewStager(ctx *device.Context, pool *commands.Pool) *Stager {
	return &Stager{ctx: ctx, pool: pool}
}

func (s *Stager) staging(size int, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	staging, err := NewBuffer(s.ctx, size, usage, stagingProperties)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}
	return staging, nil
}

// NewDeviceBuffer creates a device-local buffer holding data.
func (s *Stager) NewDeviceBuffer(data []byte, usage core1_0.BufferUsageFlags) (*Buffer, error) {
	buffer, err := NewBuffer(s.ctx, len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = s.UploadBuffer(buffer, 0, data)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

// UploadBuffer copies data into dst at offset through a staging buffer.
func (s *Stager) UploadBuffer(dst *Buffer, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if offset < 0 || offset+len(data) > dst.Size() {
		return gpu.AllocationError(nil, "upload of %d bytes at %d overflows buffer of %d", len(data), offset, dst.Size())
	}

	staging, err := s.staging(len(data), core1_0.BufferUsageTransferSrc)
	if err != nil {
		return err
	}
	defer staging.Destroy()

	err = staging.Write(0, data)
	if err != nil {
		return err
	}

	// Copy staging to final
	return s.pool.RunOneShot(func(buffer gpu.CommandBuffer) error {
		return s.ctx.Device().CmdCopyBuffer(buffer, staging.Handle(), dst.Handle(), []gpu.BufferCopy{
			{
				SrcOffset: 0,
				DstOffset: offset,
				Size:      len(data),
			},
		})
	})
}

// ReadBuffer copies the contents of src back to the host through a staging buffer.
func (s *Stager) ReadBuffer(src *Buffer) ([]byte, error) {
	if src.Size() == 0 {
		return []byte{}, nil
	}

	staging, err := s.staging(src.Size(), core1_0.BufferUsageTransferDst)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	err = s.pool.RunOneShot(func(buffer gpu.CommandBuffer) error {
		return s.ctx.Device().CmdCopyBuffer(buffer, src.Handle(), staging.Handle(), []gpu.BufferCopy{
			{Size: src.Size()},
		})
	})
	if err != nil {
		return nil, err
	}

	return staging.Read(0, src.Size())
}

// Transition moves img to newLayout. Pairs outside the transition table fail
// before anything is recorded and leave img untouched.
func (s *Stager) Transition(img *Image, newLayout core1_0.ImageLayout) error {
	t, err := LookupTransition(img.Layout(), newLayout)
	if err != nil {
		return err
	}

	err = s.pool.RunOneShot(func(buffer gpu.CommandBuffer) error {
		return s.ctx.Device().CmdPipelineBarrier(buffer, t.SrcStage, t.DstStage, gpu.ImageBarrier{
			Image:     img.Handle(),
			OldLayout: img.Layout(),
			NewLayout: newLayout,
			SrcAccess: t.SrcAccess,
			DstAccess: t.DstAccess,
			Aspect:    img.Aspect(),
		})
	})
	if err != nil {
		return err
	}

	img.layout = newLayout
	return nil
}

// UploadImage fills img with tightly packed texels and leaves it ready for sampling.
func (s *Stager) UploadImage(img *Image, texels []byte) error {
	if len(texels) != img.ByteSize() {
		return gpu.AllocationError(nil, "image of %dx%d needs %d bytes, got %d", img.Width(), img.Height(), img.ByteSize(), len(texels))
	}

	staging, err := s.staging(len(texels), core1_0.BufferUsageTransferSrc)
	if err != nil {
		return err
	}
	defer staging.Destroy()

	err = staging.Write(0, texels)
	if err != nil {
		return err
	}

	if img.Layout() != core1_0.ImageLayoutTransferDstOptimal {
		err = s.Transition(img, core1_0.ImageLayoutTransferDstOptimal)
		if err != nil {
			return err
		}
	}

	err = s.pool.RunOneShot(func(buffer gpu.CommandBuffer) error {
		return s.ctx.Device().CmdCopyBufferToImage(buffer, staging.Handle(), img.Handle(), core1_0.ImageLayoutTransferDstOptimal, gpu.BufferImageCopy{
			Aspect: img.Aspect(),
			Width:  img.Width(),
			Height: img.Height(),
		})
	})
	if err != nil {
		return err
	}

	return s.Transition(img, core1_0.ImageLayoutShaderReadOnlyOptimal)
}

// ReadImage copies the texels of img back to the host. The image is returned
// to its previous layout when the table allows it.
func (s *Stager) ReadImage(img *Image) ([]byte, error) {
	previous := img.Layout()
	if previous != core1_0.ImageLayoutTransferSrcOptimal {
		err := s.Transition(img, core1_0.ImageLayoutTransferSrcOptimal)
		if err != nil {
			return nil, err
		}
	}

	staging, err := s.staging(img.ByteSize(), core1_0.BufferUsageTransferDst)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	err = s.pool.RunOneShot(func(buffer gpu.CommandBuffer) error {
		return s.ctx.Device().CmdCopyImageToBuffer(buffer, img.Handle(), core1_0.ImageLayoutTransferSrcOptimal, staging.Handle(), gpu.BufferImageCopy{
			Aspect: img.Aspect(),
			Width:  img.Width(),
			Height: img.Height(),
		})
	})
	if err != nil {
		return nil, err
	}

	if _, err := LookupTransition(core1_0.ImageLayoutTransferSrcOptimal, previous); err == nil {
		err = s.Transition(img, previous)
		if err != nil {
			return nil, err
		}
	}

	return staging.Read(0, img.ByteSize())
}
