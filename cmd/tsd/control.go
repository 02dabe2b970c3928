// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package main

import (
	"bufio"
	"encoding/json"
	"net"

	"github.com/danos/tsd/client"
	"github.com/danos/tsd/logging"
)

var ctlLog = logging.New("ctl")

// controlRequest is one line of the newline-delimited JSON admin
// protocol the control socket speaks -- the generalization of
// cmd/configd's RPC-over-net.UnixConn handshake onto the handful of
// process-wide administrative operations (§6's module/debug ops) that
// don't belong to any one session.
type controlRequest struct {
	Op    string `json:"op"`
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

type controlResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`
}

// serveControl accepts admin connections off l and serves each in its
// own goroutine, decoding JSON requests from it one after another and
// dispatching each against cl. It runs
// until l.Accept fails (listener closed at shutdown).
func serveControl(l net.Listener, cl *client.Client) {
	for {
		c, err := l.Accept()
		if err != nil {
			ctlLog.Errorf("control accept: %v", err)
			return
		}
		go handleControlConn(c, cl)
	}
}

func handleControlConn(c net.Conn, cl *client.Client) {
	defer c.Close()
	dec := json.NewDecoder(bufio.NewReader(c))
	enc := json.NewEncoder(c)
	for {
		var req controlRequest
		if err := dec.Decode(&req); err != nil {
			return
		}
		enc.Encode(dispatchControl(cl, req))
	}
}

func dispatchControl(cl *client.Client, req controlRequest) controlResponse {
	switch req.Op {
	case "set_debug":
		level, err := logging.ParseLevel(req.Level)
		if err != nil {
			return controlResponse{Error: err.Error()}
		}
		cl.SetDebug(req.Name, level)
		return controlResponse{OK: true}
	case "debug_status":
		return controlResponse{OK: true, Status: cl.DebugStatus()}
	default:
		return controlResponse{Error: "unknown op " + req.Op}
	}
}
