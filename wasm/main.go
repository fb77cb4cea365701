//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/openfluke/typepack/host"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/metadata"
	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

var (
	mu     sync.Mutex
	engine = pup.NewEngine(host.New(host.WithWorkers(1)))
	types  = map[int]*pup.Type{}
	nextID = 1
)

func errorJSON(err error) string {
	data, _ := json.Marshal(map[string]any{
		"error":  err.Error(),
		"status": pup.StatusOf(err).String(),
	})
	return string(data)
}

func lookupType(v js.Value) (*pup.Type, error) {
	mu.Lock()
	defer mu.Unlock()
	t, ok := types[v.Int()]
	if !ok {
		return nil, fmt.Errorf("unknown type handle %d", v.Int())
	}
	return t, nil
}

func bytesFromJS(v js.Value) []byte {
	b := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(b, v)
	return b
}

func bytesToJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

// commitLayout builds a layout from YAML and returns its handle and selections as JSON.
func commitLayout() js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return errorJSON(fmt.Errorf("layout description required"))
		}
		spec, err := layout.ParseSpec([]byte(args[0].String()))
		if err != nil {
			return errorJSON(err)
		}
		n, err := spec.Build()
		if err != nil {
			return errorJSON(err)
		}
		t, err := engine.Commit(n)
		if err != nil {
			return errorJSON(err)
		}

		mu.Lock()
		id := nextID
		nextID++
		types[id] = t
		mu.Unlock()

		info := map[string]any{
			"handle":   id,
			"key":      t.Key().String(),
			"elements": n.NumElements(),
			"extent":   n.Extent(),
			"true_ub":  n.TrueUB(),
		}
		for _, dir := range []offset.Direction{offset.Pack, offset.Unpack} {
			if r := t.Routine(dir); r != nil {
				info[dir.String()] = r.Name()
			} else {
				info[dir.String()] = nil
			}
		}
		data, err := json.Marshal(info)
		if err != nil {
			return errorJSON(err)
		}
		return string(data)
	})
}

// packBytes packs count repetitions of a scattered Uint8Array into a new Uint8Array.
func packBytes() js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 3 {
			return errorJSON(fmt.Errorf("expected (handle, src, count)"))
		}
		t, err := lookupType(args[0])
		if err != nil {
			return errorJSON(err)
		}
		count := int64(args[2].Int())
		n := t.Node()
		dst := make(host.Bytes, count*n.NumElements()*int64(n.Element().Size()))
		if err := engine.Pack(host.Bytes(bytesFromJS(args[1])), dst, count, t); err != nil {
			return errorJSON(err)
		}
		return bytesToJS(dst)
	})
}

// unpackBytes scatters a packed Uint8Array into dst in place and returns the status name.
func unpackBytes() js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 4 {
			return errorJSON(fmt.Errorf("expected (handle, packed, dst, count)"))
		}
		t, err := lookupType(args[0])
		if err != nil {
			return errorJSON(err)
		}
		dst := host.Bytes(bytesFromJS(args[2]))
		if err := engine.Unpack(host.Bytes(bytesFromJS(args[1])), dst, int64(args[3].Int()), t); err != nil {
			return errorJSON(err)
		}
		js.CopyBytesToJS(args[2], dst)
		return pup.Success.String()
	})
}

func freeType() js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return nil
		}
		mu.Lock()
		t, ok := types[args[0].Int()]
		delete(types, args[0].Int())
		mu.Unlock()
		if ok {
			engine.Free(t)
		}
		return nil
	})
}

// layoutOffsets returns the scattered offset of every element as a JSON array.
func layoutOffsets() js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 2 {
			return errorJSON(fmt.Errorf("expected (layout, count)"))
		}
		spec, err := layout.ParseSpec([]byte(args[0].String()))
		if err != nil {
			return errorJSON(err)
		}
		n, err := spec.Build()
		if err != nil {
			return errorJSON(err)
		}
		md, err := metadata.Build(n)
		if err != nil {
			return errorJSON(err)
		}
		total := int64(args[1].Int()) * md.NumElements
		offs := make([]int64, 0, total)
		for g := int64(0); g < total; g++ {
			offs = append(offs, offset.Offset(md, g))
		}
		data, err := json.Marshal(offs)
		if err != nil {
			return errorJSON(err)
		}
		return string(data)
	})
}

func main() {
	fmt.Println("typepack WASM module initialized")

	js.Global().Set("TypepackCommit", commitLayout())
	js.Global().Set("TypepackPack", packBytes())
	js.Global().Set("TypepackUnpack", unpackBytes())
	js.Global().Set("TypepackFree", freeType())
	js.Global().Set("TypepackOffsets", layoutOffsets())

	fmt.Println("typepack WASM API ready:")
	fmt.Println("  - TypepackCommit(layoutYAML) - Commit a layout, returns JSON with handle and routines")
	fmt.Println("  - TypepackPack(handle, srcUint8Array, count) - Returns packed Uint8Array")
	fmt.Println("  - TypepackUnpack(handle, packedUint8Array, dstUint8Array, count) - Scatters into dst")
	fmt.Println("  - TypepackFree(handle)")
	fmt.Println("  - TypepackOffsets(layoutYAML, count) - JSON array of element offsets")

	select {}
}
