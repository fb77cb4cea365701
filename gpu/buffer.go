package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// ErrTimeout is returned when the device does not confirm a mapping in time.
var ErrTimeout = errors.New("gpu: timed out waiting for device")

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

// Buffer is device memory addressed in bytes. The allocation is padded to a
// multiple of four bytes; Len reports the requested size.
type Buffer struct {
	buf  *wgpu.Buffer
	size int
}

func padded(n int) uint64 {
	return uint64((n + 3) &^ 3)
}

// EnsureGPU ensures the GPU context is initialized
func EnsureGPU() error {
	_, err := GetContext()
	return err
}

// NewBuffer allocates a zeroed storage buffer of size bytes.
func NewBuffer(size int, label string) (*Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  max(padded(size), 4),
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}
	return &Buffer{buf: buf, size: size}, nil
}

// NewBufferInit creates a storage buffer holding data.
func NewBufferInit(data []byte, label string) (*Buffer, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	contents := make([]byte, max(padded(len(data)), 4))
	copy(contents, data)
	buf, err := c.Device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label,
		Contents: contents,
		Usage:    storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}
	return &Buffer{buf: buf, size: len(data)}, nil
}

func (b *Buffer) Len() int          { return b.size }
func (b *Buffer) Raw() *wgpu.Buffer { return b.buf }

// Write replaces the buffer contents starting at byte 0.
func (b *Buffer) Write(data []byte) error {
	if len(data) > b.size {
		return fmt.Errorf("write of %d bytes into %d byte buffer", len(data), b.size)
	}
	c, err := GetContext()
	if err != nil {
		return err
	}
	contents := make([]byte, padded(len(data)))
	copy(contents, data)
	if len(data)%4 != 0 {
		// keep the bytes sharing the last word
		tail, err := b.Read()
		if err != nil {
			return err
		}
		copy(contents[len(data):], tail[len(data):min(len(tail), len(contents))])
	}
	c.Queue.WriteBuffer(b.buf, 0, contents)
	return nil
}

// Read copies the buffer back to the host.
func (b *Buffer) Read() ([]byte, error) {
	out, err := readBuffer(b.buf, padded(b.size), 2*time.Second)
	if err != nil {
		return nil, err
	}
	return out[:b.size], nil
}

// Destroy frees the device allocation.
func (b *Buffer) Destroy() {
	if b.buf != nil {
		b.buf.Destroy()
		b.buf = nil
	}
}

// readBuffer copies size bytes of buffer through a staging buffer and maps it.
// It also serves as the completion fence: the mapping resolves only after all
// previously submitted work.
func readBuffer(buffer *wgpu.Buffer, size uint64, timeout time.Duration) ([]byte, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}

	stagingBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ReadStaging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create staging buffer: %w", err)
	}
	defer stagingBuf.Destroy()

	encoder, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(buffer, 0, stagingBuf, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish command: %w", err)
	}
	c.Queue.Submit(cmd)

	done := make(chan struct{})
	var mapErr error
	err = stagingBuf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map failed: %v", status)
		}
		close(done)
	})
	if err != nil {
		return nil, fmt.Errorf("MapAsync failed: %w", err)
	}

	deadline := time.After(timeout)
Loop:
	for {
		c.Device.Poll(false, nil)
		select {
		case <-done:
			break Loop
		case <-deadline:
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if mapErr != nil {
		return nil, mapErr
	}

	data := stagingBuf.GetMappedRange(0, uint(size))
	if data == nil {
		return nil, fmt.Errorf("failed to get mapped range")
	}
	result := make([]byte, size)
	copy(result, data)
	stagingBuf.Unmap()
	return result, nil
}
