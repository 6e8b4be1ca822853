package trace

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func currentCPU() int32 {
	var cpu uint32

	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)), 0, 0)
	if errno != 0 {
		return -1
	}

	return int32(cpu)
}
