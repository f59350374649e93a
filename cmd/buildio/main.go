//go:build linux || darwin || freebsd

package main

import (
	"github.com/axondata/go-buildio"
	"github.com/axondata/go-buildio/internal/cli"
)

func main() {
	if buildio.InitChild() {
		return
	}
	cli.Execute()
}
