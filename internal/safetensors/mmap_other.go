//go:build !unix

package safetensors

import "os"

func mapFile(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	return data, false, err
}

func unmapFile([]byte) error { return nil }
