// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
// Copyright (c) 2014-2017 by Brocade Communications Systems, Inc.
// All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

/*
tsd is a daemon that owns one installation's shared-memory datastore
state and exposes a small administrative control socket alongside it.

Usage:

	-configfile=<filename>
		INI file of daemon configuration (default: /etc/tsd/tsd.conf).

	-reporoot=<dir>
		Installation root holding shared memory, locks and persisted
		datastore files (default: /run/tsd).

	-pidfile=<filename>
		Write pid to the given file (default: <reporoot>/tsd.pid).

	-logfile=<filename>
		Redirect std{out,err} to the given file.

	-socketfile=<filename>
		Admin control socket path, used when not started under systemd
		socket activation (default: <reporoot>/tsd.sock).

	SIGUSR1
		Toggle CPU profiling; profile data is written to -cpuprofile.
*/
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"syscall"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/danos/tsd/client"
	"github.com/danos/tsd/logging"
)

var log = logging.New("daemon")

var (
	configfile  = flag.String("configfile", "/etc/tsd/tsd.conf", "Load daemon configuration from the supplied ini file.")
	reporoot    = flag.String("reporoot", "/run/tsd", "Installation root for shared memory, locks and persisted data.")
	pidfile     = flag.String("pidfile", "", "Write pid to the supplied file (default: <reporoot>/tsd.pid).")
	logfile     = flag.String("logfile", "", "Redirect std{out,err} to the supplied file.")
	socketfile  = flag.String("socketfile", "", "Admin control socket path (default: <reporoot>/tsd.sock).")
	cpuprofile  = flag.String("cpuprofile", "/run/tsd/tsd.pprof", "Write cpu profile to the supplied file on SIGUSR1.")
	runningprof bool
)

func fatal(err error) {
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func sigstartprof() {
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGUSR1)
	for range sigch {
		if !runningprof {
			f, err := os.Create(*cpuprofile)
			if err != nil {
				log.Errorf("%v", err)
				continue
			}
			pprof.StartCPUProfile(f)
			runningprof = true
		} else {
			pprof.StopCPUProfile()
			runningprof = false
		}
	}
}

func openLogfile(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0640)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	defer f.Close()
	syscall.Dup2(int(f.Fd()), 1)
	syscall.Dup2(int(f.Fd()), 2)
}

func writePid(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
}

// getListener prefers a systemd-activated socket (the way cmd/configd's
// getListeners does) and falls back to binding socketPath itself.
func getListener(socketPath string) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, err
	}
	if len(listeners) > 0 && listeners[0] != nil {
		return listeners[0], nil
	}
	os.Remove(socketPath)
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	os.Chmod(socketPath, 0770)
	return l, nil
}

func main() {
	debug.SetGCPercent(25)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := &daemonConfig{
		RepoRoot: *reporoot,
		Pidfile:  *pidfile,
		Logfile:  *logfile,
		Socket:   *socketfile,
		User:     "tsd",
		Group:    "tsd",
	}
	if err := loadConfigFile(*configfile, cfg); err != nil {
		log.Debugf("configfile %s not applied: %v", *configfile, err)
	}
	if cfg.Pidfile == "" {
		cfg.Pidfile = cfg.RepoRoot + "/tsd.pid"
	}
	if cfg.Socket == "" {
		cfg.Socket = cfg.RepoRoot + "/tsd.sock"
	}

	openLogfile(cfg.Logfile)
	fatal(os.MkdirAll(cfg.RepoRoot, 0755))

	go sigstartprof()

	cl, err := client.Connect(client.Options{RepoRoot: cfg.RepoRoot, Pid: os.Getpid()})
	fatal(err)
	defer client.Disconnect(cl)

	l, err := getListener(cfg.Socket)
	fatal(err)

	writePid(cfg.Pidfile)

	runtime.GC()
	debug.FreeOSMemory()

	serveControl(l, cl)
}
