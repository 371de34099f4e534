// Package usermem provides bounded views over untrusted caller memory.
//
// A Slice is created from a raw (address, length) pair supplied by the host
// and validated against the caller's AddressSpace. It hands out a Reader or a
// Writer whose remaining length only ever decreases:
//
//	s, err := usermem.NewSlice(as, buf, length)
//	if err != nil {
//		return err // EFAULT
//	}
//	w := s.Writer()
//	w.Write(data)
//	transferred := length - w.Len()
//
// No copy ever crosses the original bound; a request larger than the
// remaining length is truncated to it.
//
// Two address spaces are provided: BytesIO over a Go byte slice and
// GuestMemory over a wazero linear memory.
package usermem
