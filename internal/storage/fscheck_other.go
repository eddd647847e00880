//go:build !darwin && !linux

package storage

import "errors"

func statfsType(string) (string, error) {
	return "", errors.New("cannot detect filesystem type on this platform")
}
