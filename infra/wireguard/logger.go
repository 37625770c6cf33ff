package wireguard

import (
	"fmt"
	"log/slog"

	"golang.zx2c4.com/wireguard/device"
)

func newDeviceLogger(log *slog.Logger) *device.Logger {
	return &device.Logger{
		Verbosef: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
		Errorf: func(format string, args ...any) {
			log.Error(fmt.Sprintf(format, args...))
		},
	}
}
