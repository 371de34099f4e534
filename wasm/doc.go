// Package wasm builds and encodes core WebAssembly modules.
//
// It models the sections a host-call guest uses: types, function and memory
// imports, functions, memories, exports, code and active data segments.
//
//	var m wasm.Module
//	open := m.ImportFunc("chardev", "open", wasm.FuncType{
//		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32},
//		Results: []wasm.ValType{wasm.ValI64},
//	})
//	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
//	m.Export("memory", wasm.KindMemory, 0)
//	start := m.AddFunc(wasm.FuncType{}, wasm.FuncBody{
//		Code: wasm.MustEncodeInstructions(
//			wasm.I32Const(0), wasm.I32Const(12), wasm.I32Const(2),
//			wasm.Call(open), wasm.Op(wasm.OpDrop),
//		),
//	})
//	m.Export("_start", wasm.KindFunc, start)
//	bin := m.Encode()
package wasm
