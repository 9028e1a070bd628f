// Package utils holds build metadata injected with -ldflags at release time.
package utils

var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
