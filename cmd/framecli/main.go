package main

import (
	"github.com/robotalks/framelink/pkg/cli/sh"
	"github.com/robotalks/framelink/pkg/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
