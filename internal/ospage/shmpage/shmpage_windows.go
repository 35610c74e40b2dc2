package shmpage

import (
	"syscall"
	"unsafe"
)

var (
	kernel32            = syscall.NewLazyDLL("kernel32.dll")
	procOpenFileMapping = kernel32.NewProc("OpenFileMappingW")
)

func openFileMapping(dwDesiredAccess uint32, bInheritHandle uint32, lpName *uint16) (syscall.Handle, error) {
	ret, _, err := procOpenFileMapping.Call(
		uintptr(dwDesiredAccess),
		uintptr(bInheritHandle),
		uintptr(unsafe.Pointer(lpName)),
	)
	if err.(syscall.Errno) == 0 {
		err = nil
	}
	return syscall.Handle(ret), err
}

// attach opens (or creates) a named file mapping sized bytes and maps it
// into this process's address space.
func attach(name string, bytes uint64) (id uint64, base uintptr, err error) {
	namep, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return 0, 0, err
	}

	handle, err := openFileMapping(syscall.FILE_MAP_READ|syscall.FILE_MAP_WRITE, 0, namep)
	if err != nil {
		sizehi := uint32(bytes >> 32)
		sizelo := uint32(bytes) & 0xffffffff
		handle, err = syscall.CreateFileMapping(syscall.InvalidHandle, nil, syscall.PAGE_READWRITE, sizehi, sizelo, namep)
		if err != nil {
			return 0, 0, err
		}
	}

	basep, err := syscall.MapViewOfFile(handle, syscall.FILE_MAP_READ|syscall.FILE_MAP_WRITE, 0, 0, uintptr(bytes))
	if err != nil {
		return 0, 0, err
	}

	return uint64(handle), basep, nil
}

// detach unmaps and closes seg's mapping.
func detach(seg segment) error {
	if err := syscall.UnmapViewOfFile(seg.base); err != nil {
		return err
	}
	return syscall.CloseHandle(syscall.Handle(seg.id))
}
