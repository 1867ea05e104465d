package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/karasz/kelissuer/internal/controller"
	"github.com/karasz/kelissuer/internal/dispatch"
	"github.com/karasz/kelissuer/internal/keys"
	"github.com/karasz/kelissuer/internal/wire"
)

func keyFilePath() string {
	return filepath.Join(dbDir, "controller.key")
}

// openController reopens an existing controller, initing one in place if
// dbDir has never been used before. The KeyManager's persisted keypairs
// let separate CLI invocations act on the same identity.
func openController() (*controller.Controller, *keys.Manager, error) {
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, nil, err
	}
	km, created, err := keys.LoadOrNew(keyFilePath())
	if err != nil {
		return nil, nil, err
	}
	if created {
		c, err := controller.Init(km, dbDir)
		if err == nil {
			c.SetLogger(logger)
		}
		return c, km, err
	}
	c, err := controller.Open(km, dbDir)
	if err == nil {
		c.SetLogger(logger)
	}
	return c, km, err
}

// openDispatcher opens a Controller and fronts it with a Dispatcher sized
// per the --queue-capacity/--workers flags, so every CLI command submits
// through the same single-writer surface that serve's worker pool uses.
// The caller owns both returned lifetimes: Stop the Dispatcher first, then
// Close the Controller.
func openDispatcher() (*dispatch.Dispatcher, *controller.Controller, *keys.Manager, error) {
	c, km, err := openController()
	if err != nil {
		return nil, nil, nil, err
	}
	d := dispatch.New(c, queueCapacity, workerCount)
	d.SetLogger(logger)
	return d, c, km, nil
}

// await blocks for a task's Result and turns a Failure-equivalent into a Go
// error, so CLI commands can treat Push+receive like a plain function call.
func await(reply <-chan wire.Result, err error) (wire.Result, error) {
	if err != nil {
		return wire.Result{}, err
	}
	res := <-reply
	if !res.OK {
		return wire.Result{}, fmt.Errorf("%s: %s", res.ErrKind, res.ErrMsg)
	}
	return res, nil
}
