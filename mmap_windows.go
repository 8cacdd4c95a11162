//go:build windows

package pstore

import (
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsMappingHandles remembers the file-mapping handle behind a []byte window
// so it can be torn down again on unmap; on Windows the []byte's address
// alone isn't enough to unmap or reprotect it.
var windowsMappingHandles = map[uintptr]windows.Handle{}

func mmapRW(fd int, offset int64, size int) ([]byte, error) {
	h := windows.Handle(fd)
	maxSizeHigh := uint32((offset + int64(size)) >> 32)
	maxSizeLow := uint32((offset + int64(size)) & 0xffffffff)

	mapping, err := windows.CreateFileMapping(h, nil, windows.PAGE_READWRITE, maxSizeHigh, maxSizeLow, nil)
	access := uint32(windows.FILE_MAP_WRITE)
	if err == windows.ERROR_ACCESS_DENIED {
		// A read-only handle (WithReadOnly) is mapped read-only.
		mapping, err = windows.CreateFileMapping(h, nil, windows.PAGE_READONLY, maxSizeHigh, maxSizeLow, nil)
		access = uint32(windows.FILE_MAP_READ)
	}
	if err != nil {
		return nil, err
	}

	offsetHigh := uint32(offset >> 32)
	offsetLow := uint32(offset & 0xffffffff)
	addr, err := windows.MapViewOfFile(mapping, access, offsetHigh, offsetLow, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, err
	}

	var b []byte
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	sh.Data = addr
	sh.Len = size
	sh.Cap = size

	windowsMappingHandles[addr] = mapping
	return b, nil
}

func munmapBytes(b []byte) error {
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	addr := sh.Data

	if err := windows.UnmapViewOfFile(addr); err != nil {
		return err
	}
	if mapping, ok := windowsMappingHandles[addr]; ok {
		delete(windowsMappingHandles, addr)
		return windows.CloseHandle(mapping)
	}
	return nil
}

func mprotectReadOnly(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	var old uint32
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	return windows.VirtualProtect(sh.Data, uintptr(sh.Len), windows.PAGE_READONLY, &old)
}

func mprotectReadWrite(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	var old uint32
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	return windows.VirtualProtect(sh.Data, uintptr(sh.Len), windows.PAGE_READWRITE, &old)
}

func msyncSync(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	return windows.FlushViewOfFile(sh.Data, uintptr(sh.Len))
}

var _ = os.O_RDWR // keep os imported for parity with the unix build's file-based signature
