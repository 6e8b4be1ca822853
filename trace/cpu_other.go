//go:build !linux

package trace

func currentCPU() int32 {
	return -1
}
