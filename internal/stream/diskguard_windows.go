// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package stream

import (
	"syscall"
	"unsafe"
)

// freeSpace reports the free bytes available on the volume holding dir.
func freeSpace(dir string) (int64, error) {
	var freeBytesAvailable int64
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	proc := kernel32.NewProc("GetDiskFreeSpaceExW")

	path, err := syscall.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}

	r, _, callErr := proc.Call(
		uintptr(unsafe.Pointer(path)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		0,
		0,
	)
	if r == 0 {
		return 0, callErr
	}
	return freeBytesAvailable, nil
}
