package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Kernel is one compiled pack or unpack pipeline. Bindings:
// 0 metadata image, 1 source, 2 destination, 3 launch parameters.
type Kernel struct {
	Name string

	pipeline        *wgpu.ComputePipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

// CompileKernel builds the pipeline for WGSL source.
func CompileKernel(c *Context, name, source string) (*Kernel, error) {
	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("shader compile: %w", err)
	}
	defer module.Release()

	k := &Kernel{Name: name}
	// Explicit Bind Group Layout to avoid "auto" layout issues in WASM
	k.bindGroupLayout, err = c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: name + "_BGL",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bgl: %w", err)
	}

	pipelineLayout, err := c.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            name + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{k.bindGroupLayout},
	})
	if err != nil {
		k.Cleanup()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	k.pipeline, err = c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  name + "_Pipe",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		k.Cleanup()
		return nil, fmt.Errorf("pipeline create: %w", err)
	}
	return k, nil
}

// BindGroup binds the buffers of one launch.
func (k *Kernel) BindGroup(c *Context, md, src, dst, params *wgpu.Buffer) (*wgpu.BindGroup, error) {
	return c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  k.Name + "_Bind",
		Layout: k.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: md, Size: md.GetSize()},
			{Binding: 1, Buffer: src, Size: src.GetSize()},
			{Binding: 2, Buffer: dst, Size: dst.GetSize()},
			{Binding: 3, Buffer: params, Size: params.GetSize()},
		},
	})
}

// Dispatch records an x by y grid of groups.
func (k *Kernel) Dispatch(pass *wgpu.ComputePassEncoder, bg *wgpu.BindGroup, x, y uint32) {
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(x, y, 1)
}

func (k *Kernel) Cleanup() {
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
	if k.bindGroupLayout != nil {
		k.bindGroupLayout.Release()
		k.bindGroupLayout = nil
	}
}
