package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/appstore/deploy/pkg/conftools"
	"github.com/appstore/deploy/pkg/deployclient"
	"github.com/appstore/deploy/pkg/version"
)

func main() {
	err := run()
	if err == nil {
		return
	}
	code := deployclient.ErrorExitCode(err)
	if code == deployclient.ExitInvocationFailure {
		flag.Usage()
	}
	log.Errorf("fatal: %s", err)
	os.Exit(int(code))
}

func run() error {
	cfg := &deployclient.Config{}
	deployclient.InitConfig()

	err := conftools.Load(cfg)
	if err != nil {
		return deployclient.ErrorWrap(deployclient.ExitInvocationFailure, err)
	}

	if cfg.ShowVersion {
		fmt.Printf("appstore deploy %s\n", version.Version())
		return nil
	}

	deployclient.SetupLogging(*cfg)

	err = cfg.Validate()
	if err != nil {
		return deployclient.ErrorWrap(deployclient.ExitInvocationFailure, err)
	}

	// Welcome
	log.Infof("appstore deploy %s", version.Version())
	ts, err := version.BuildTime()
	if err == nil {
		log.Infof("This version was built %s", ts.Local())
	}

	for _, line := range conftools.Format(deployclient.MaskedConfigKeys) {
		log.Info(line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	return deployclient.NewDeployer().Run(ctx, cfg)
}
