// Package pup packs scattered layouts into linear buffers and unpacks them back on
// an execution device.
//
// A layout is committed once through Engine.Commit, which selects the pack and
// unpack routines for its shape. Transfers then run synchronously:
//
//	t, _ := eng.Commit(node)
//	err := eng.Pack(scattered, packed, count, t)
//	switch pup.StatusOf(err) {
//	case pup.Success:
//	case pup.Unspecialized:
//		// route to a generic fallback
//	default:
//		// destination contents are undefined
//	}
package pup
