// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package main

import (
	"github.com/go-ini/ini"
)

// daemonConfig is the daemon's own configuration, loaded from an ini
// file the way cmd/configd loads configd.conf (and cmd/yangc loads its
// xpath-plugin ini files) via github.com/go-ini/ini. main fills cfg from
// flags (RepoRoot, Socket, Pidfile, Logfile) and fixed defaults (User and
// Group "tsd"; Supergroup empty) first, and any key present in the file
// then overwrites that value. A missing or unreadable config file is not
// fatal.
type daemonConfig struct {
	RepoRoot   string
	Socket     string
	Pidfile    string
	Logfile    string
	User       string
	Group      string
	Supergroup string
}

// loadConfigFile merges [main] section keys from path into cfg,
// leaving fields untouched when the file or key is absent -- the
// defaults already populated on cfg stand.
func loadConfigFile(path string, cfg *daemonConfig) error {
	if path == "" {
		return nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return err
	}
	sec := f.Section("main")
	assign := func(key string, dst *string) {
		if k, err := sec.GetKey(key); err == nil {
			*dst = k.String()
		}
	}
	assign("repo_root", &cfg.RepoRoot)
	assign("socket", &cfg.Socket)
	assign("pidfile", &cfg.Pidfile)
	assign("logfile", &cfg.Logfile)
	assign("user", &cfg.User)
	assign("group", &cfg.Group)
	assign("supergroup", &cfg.Supergroup)
	return nil
}
