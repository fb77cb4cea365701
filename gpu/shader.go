package gpu

import (
	"fmt"
	"strings"

	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
)

// ShaderName identifies the kernel for a kind sequence, element width in words
// and direction. Kernels with the same name are interchangeable.
func ShaderName(kinds []layout.Kind, words int, dir offset.Direction) string {
	var b strings.Builder
	b.WriteString(dir.String())
	for _, k := range kinds {
		b.WriteByte('_')
		b.WriteString(k.String())
	}
	fmt.Fprintf(&b, "_w%d", 4*words)
	return b.String()
}

// GenerateShader emits a WGSL kernel with one block per level, outermost first.
// Layout parameters are read from the metadata image at binding 0; only the
// level sequence is fixed in the source.
func GenerateShader(kinds []layout.Kind, words int, dir offset.Direction, groupSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `// %s
struct Params {
	total : u32,
	row : u32,
	pad0 : u32,
	pad1 : u32,
};

@group(0) @binding(0) var<storage, read> md : array<u32>;
@group(0) @binding(1) var<storage, read> src : array<u32>;
@group(0) @binding(2) var<storage, read_write> dst : array<u32>;
@group(0) @binding(3) var<uniform> params : Params;

const WORDS : u32 = %du;

fn sword(i : u32) -> i32 {
	return bitcast<i32>(md[i]);
}

@compute @workgroup_size(%d)
fn main(@builtin(global_invocation_id) gid : vec3<u32>) {
	let g = gid.y * params.row + gid.x;
	if (g >= params.total) { return; }

	let n = md[%du];
	var res = g %% n;
	var off = i32(g / n) * sword(%du);
`, ShaderName(kinds, words, dir), words, groupSize, metadata.HdrNumElements, metadata.HdrExtent)

	for i, k := range kinds {
		base := metadata.HeaderWords + metadata.LevelWords*i
		fmt.Fprintf(&b, "\n\t// level %d: %s\n", i, k)
		writeLevel(&b, k, base)
	}

	fmt.Fprintf(&b, `
	off = off + i32(res) * i32(md[%du]);
	let s = u32(off) / 4u;
	let l = g * WORDS;
	for (var w = 0u; w < WORDS; w = w + 1u) {
`, metadata.HdrElemSize)
	if dir == offset.Pack {
		b.WriteString("\t\tdst[l + w] = src[s + w];\n")
	} else {
		b.WriteString("\t\tdst[s + w] = src[l + w];\n")
	}
	b.WriteString("\t}\n}\n")
	return b.String()
}

func writeLevel(b *strings.Builder, k layout.Kind, base int) {
	field := func(f int) int { return base + f }
	switch k {
	case layout.KindContiguous:
		fmt.Fprintf(b, `	{
		let ce = md[%du];
		off = off + i32(res / ce) * sword(%du);
		res = res %% ce;
	}
`, field(metadata.LvChildElements), field(metadata.LvChildExtent))

	case layout.KindVector:
		fmt.Fprintf(b, `	{
		let ce = md[%du];
		let per = md[%du] * ce;
		let x = res / per;
		res = res %% per;
		off = off + i32(x) * sword(%du) + i32(res / ce) * sword(%du);
		res = res %% ce;
	}
`, field(metadata.LvChildElements), field(metadata.LvBlocklength),
			field(metadata.LvStride), field(metadata.LvChildExtent))

	case layout.KindBlockIndexed:
		fmt.Fprintf(b, `	{
		let ce = md[%du];
		let per = md[%du] * ce;
		let x = res / per;
		res = res %% per;
		off = off + sword(md[%du] + x) + i32(res / ce) * sword(%du);
		res = res %% ce;
	}
`, field(metadata.LvChildElements), field(metadata.LvBlocklength),
			field(metadata.LvDispls), field(metadata.LvChildExtent))

	case layout.KindIndexed:
		// linear scan in declaration order, clamped to the last block
		fmt.Fprintf(b, `	{
		let ce = md[%du];
		let count = md[%du];
		let bls = md[%du];
		var x = 0u;
		loop {
			if (x + 1u >= count) { break; }
			let inb = md[bls + x] * ce;
			if (res < inb) { break; }
			res = res - inb;
			x = x + 1u;
		}
		off = off + sword(md[%du] + x) + i32(res / ce) * sword(%du);
		res = res %% ce;
	}
`, field(metadata.LvChildElements), field(metadata.LvCount), field(metadata.LvBlocklens),
			field(metadata.LvDispls), field(metadata.LvChildExtent))

	case layout.KindDuplicate, layout.KindResized:
		b.WriteString("\t// no offset term\n")
	}
}
