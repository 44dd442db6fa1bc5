package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/framelink/pkg/bridge"
	"github.com/robotalks/framelink/pkg/env"
	fx "github.com/robotalks/framelink/pkg/framework"
)

func init() {
	env.SetupFlags()
	bridge.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	b, err := bridge.NewConfig().NewBridge(env.NewConfig())
	if err != nil {
		glog.Exitln(err)
	}
	if err := fx.NewRunner().HandleSignals().StopOnError().Go(fx.NamedRun("bridge", b)).Wait(); err != nil {
		glog.Exitln(err)
	}
}
