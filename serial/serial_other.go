//go:build !linux

package serial

import (
	"github.com/BertoldVdb/go-sysfs/hwerr"
)

func openPortOs(options *PortOptions) (Port, error) {
	return nil, hwerr.New(hwerr.ErrorUnsupported, "open", options.PortName, nil)
}
