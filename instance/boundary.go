package instance

import (
	"context"
	"sync"

	"wgserv"
)

// The functions below are the string-based surface exposed to foreign
// callers. They operate on a process-wide production registry. An empty
// result string means success.

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewProduction()
	})
	return defaultRegistry
}

func Create() Handle {
	return Default().Create()
}

// Destroy stops and removes the instance. Unknown handles are ignored.
func Destroy(h Handle) {
	_ = Default().Destroy(h)
}

func SetConfiguration(h Handle, text string) string {
	return message(Default().SetConfig(h, text))
}

// Run blocks until the instance stops. It returns "" for a clean stop.
func Run(h Handle) string {
	return message(Default().Run(context.Background(), h))
}

func SampleConfiguration() string {
	return wgserv.SampleText()
}

func message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
