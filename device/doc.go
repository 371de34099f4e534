// Package device registers drivers with a host.
//
// A misc device is a single node on the shared misc major:
//
//	m, err := device.NewMiscPinned[example.File](h, "rust_miscdev", -1, example.Driver{})
//	defer m.Close()
//
// A Chrdev is a region of minors on a dynamically allocated major, each minor
// registered separately and all removed together by Close.
package device
