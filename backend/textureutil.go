package backend

import (
	"image"
	"image/draw"

	// Load the png/jpeg image decoders
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
	xdraw "golang.org/x/image/draw"
)

func (d *Device) StageTextureFromDisk(filename string, cmd *CommandBuffer, queue *Queue) (*StagedBoundImage, error) {
	return d.StageTextureFromDiskFit(filename, image.Point{}, cmd, queue)
}

// StageTextureFromDiskFit loads filename and, if fit is non-zero and
// doesn't match the decoded image's dimensions, resamples it to fit with
// a high-quality filter before staging. A caller that wants a texture at
// a fixed extent -- matching a declared rendergraph.ResourceInfo, say --
// needs its source asset to land on that extent somehow, and a
// nearest-neighbor copy bands visibly on anything but an exact size
// match.
func (d *Device) StageTextureFromDiskFit(filename string, fit image.Point, cmd *CommandBuffer, queue *Queue) (*StagedBoundImage, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	src, _, err := image.Decode(reader)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()

	target := image.Rect(0, 0, b.Dx(), b.Dy())
	if fit.X > 0 && fit.Y > 0 && (fit.X != b.Dx() || fit.Y != b.Dy()) {
		target = image.Rect(0, 0, fit.X, fit.Y)
	}

	m := image.NewRGBA(target)
	if target.Dx() == b.Dx() && target.Dy() == b.Dy() {
		draw.Draw(m, m.Bounds(), src, b.Min, draw.Src)
	} else {
		xdraw.CatmullRom.Scale(m, m.Bounds(), src, b, xdraw.Over, nil)
	}

	return d.StageTextureFromImage(m, cmd, queue)
}

// StageTextureFromImage uploads srcImg's pixels into a freshly allocated
// device-local vk.Image and leaves it in ImageLayoutShaderReadOnlyOptimal,
// ready to bind into a descriptor set or hand to Renderer.BindImage. cmd
// and queue drive the one-time transfer; the call blocks on a fence until
// it completes.
func (d *Device) StageTextureFromImage(srcImg *image.RGBA, cmd *CommandBuffer, queue *Queue) (*StagedBoundImage, error) {
	b := srcImg.Bounds()

	si, err := d.StageRGBAImageFromMemory(unsafe.Pointer(&srcImg.Pix[0]), b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	cmd.BeginOneTime()
	cmd.TransitionImageLayout(si, vk.FormatR8g8b8a8Unorm, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	cmd.CopyImage(si)
	cmd.TransitionImageLayout(si, vk.FormatR8g8b8a8Unorm, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	cmd.End()

	f, err := d.CreateFence()
	if err != nil {
		return nil, err
	}
	defer f.Destroy()

	if err := queue.SubmitWithFence(f, cmd); err != nil {
		return nil, err
	}

	if err := d.WaitForFences(true, 100*time.Second, f); err != nil {
		return nil, err
	}

	si.HostBuffer.Destroy()
	si.HostMemory.Destroy()

	return si, nil
}
