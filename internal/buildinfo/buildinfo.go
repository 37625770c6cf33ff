// Package buildinfo carries values stamped in at link time.
package buildinfo

// Version is set with -ldflags "-X wgserv/internal/buildinfo.Version=...".
var Version = "dev"
