//go:build !linux

package cloud

func kernelSynced() bool {
	return fallbackSynced()
}
