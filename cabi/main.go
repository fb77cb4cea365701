package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"fmt"
	"sync"
	"unsafe"

	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

// Helper functions for JSON responses
func errJSON(msg string) *C.char {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return C.CString(string(data))
}

func asJSON(v interface{}) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		return errJSON(err.Error())
	}
	return C.CString(string(data))
}

var (
	currentMu sync.Mutex
	current   *session
)

// active returns the open session, opening one with default settings if needed.
func active() (*session, error) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil {
		s, err := openSession("")
		if err != nil {
			return nil, err
		}
		current = s
	}
	return current, nil
}

//export TypepackInit
func TypepackInit(optionsJSON *C.char) *C.char {
	s, err := openSession(C.GoString(optionsJSON))
	if err != nil {
		return errJSON(fmt.Sprintf("init: %v", err))
	}
	currentMu.Lock()
	if current != nil {
		current.close()
	}
	current = s
	currentMu.Unlock()
	return asJSON(map[string]interface{}{
		"status":            "success",
		"backend":           s.dev.Name(),
		"max_nesting_level": s.cfg.MaxNestingLevel,
	})
}

// TypepackCommit registers a YAML layout description and returns its handle and
// the selected routines as JSON.
//
//export TypepackCommit
func TypepackCommit(layoutYAML *C.char) *C.char {
	s, err := active()
	if err != nil {
		return errJSON(err.Error())
	}
	info, err := s.commit(C.GoString(layoutYAML))
	if err != nil {
		return errJSON(fmt.Sprintf("commit: %v", err))
	}
	return asJSON(info)
}

func transfer(dir offset.Direction, handle C.int, src unsafe.Pointer, srcLen C.longlong, dst unsafe.Pointer, dstLen C.longlong, count C.longlong) C.int {
	s, err := active()
	if err != nil {
		return C.int(pup.LaunchFailure)
	}
	if (src == nil && srcLen > 0) || (dst == nil && dstLen > 0) || srcLen < 0 || dstLen < 0 {
		return C.int(pup.InvalidArgument)
	}
	var srcBytes, dstBytes []byte
	if srcLen > 0 {
		srcBytes = unsafe.Slice((*byte)(src), int(srcLen))
	}
	if dstLen > 0 {
		dstBytes = unsafe.Slice((*byte)(dst), int(dstLen))
	}
	err = s.transfer(dir, int32(handle), srcBytes, dstBytes, int64(count))
	return C.int(pup.StatusOf(err))
}

// TypepackPack returns a status code; see TypepackStatusName.
//
//export TypepackPack
func TypepackPack(handle C.int, src unsafe.Pointer, srcLen C.longlong, dst unsafe.Pointer, dstLen C.longlong, count C.longlong) C.int {
	return transfer(offset.Pack, handle, src, srcLen, dst, dstLen, count)
}

//export TypepackUnpack
func TypepackUnpack(handle C.int, src unsafe.Pointer, srcLen C.longlong, dst unsafe.Pointer, dstLen C.longlong, count C.longlong) C.int {
	return transfer(offset.Unpack, handle, src, srcLen, dst, dstLen, count)
}

//export TypepackFree
func TypepackFree(handle C.int) C.int {
	s, err := active()
	if err != nil || !s.free(int32(handle)) {
		return C.int(pup.InvalidArgument)
	}
	return C.int(pup.Success)
}

//export TypepackStatusName
func TypepackStatusName(status C.int) *C.char {
	return C.CString(pup.Status(status).String())
}

//export FreeTypepackString
func FreeTypepackString(str *C.char) {
	C.free(unsafe.Pointer(str))
}

func main() {}
