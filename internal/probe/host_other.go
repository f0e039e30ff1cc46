//go:build !linux

package probe

import "errors"

func readHostStats() (HostStats, error) {
	return HostStats{}, errors.New("host statistics are only available on linux")
}
