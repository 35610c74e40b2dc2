package shmpage

import (
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	shmCreate = 01000
	shmAccess = 00600
)

// attach creates (or opens) a SysV shared-memory segment named name, sized
// bytes, and attaches it into this process's address space.
func attach(name string, bytes uint64) (id uint64, base uintptr, err error) {
	key := shmKey(name)
	shmid, _, errno := syscall.Syscall(syscall.SYS_SHMGET, key, uintptr(bytes), uintptr(shmAccess|shmCreate))
	if errno != 0 {
		return 0, 0, error(errno)
	}

	basep, _, errno := syscall.Syscall(syscall.SYS_SHMAT, shmid, 0, 0)
	if errno != 0 {
		return 0, 0, error(errno)
	}

	return uint64(shmid), basep, nil
}

// detach detaches and removes seg's segment.
func detach(seg segment) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_SHMDT, uintptr(seg.base), 0, 0); errno != 0 {
		return error(errno)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_SHMCTL, uintptr(seg.id), uintptr(unix.IPC_RMID), 0); errno != 0 {
		return error(errno)
	}
	return nil
}
