// Package ioctl decodes packed device-control command words and dispatches
// them to handlers by buffer direction.
//
// A command word packs a number, a type, a payload size and a direction:
//
//	cmd := ioctl.IOW('c', 1, 8) // caller writes 8 bytes
//	d := ioctl.Decode(cmd)      // Direction{Kind: KindWrite, Size: 8}
//
// Decoding is isolated in Layout.Decode. Two layouts are provided: Generic
// and Legacy (3-bit direction field with a non-zero "none").
//
// Dispatch constructs the buffer view at most once per command:
//
//	none       -> Handler.Pure(cmd, arg), no buffer
//	read       -> Handler.Read(cmd, writer over Size bytes at arg)
//	write      -> Handler.Write(cmd, reader over Size bytes at arg)
//	read-write -> Handler.ReadWrite(cmd, slice over Size bytes at arg)
//	otherwise  -> EINVAL
package ioctl
