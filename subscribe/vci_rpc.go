// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package subscribe

import (
	"github.com/danos/vci"
)

// RPCMetadata carries the caller identity a cross-process RPC call
// forwards alongside its arguments, the generalization of
// server/dispatcher.go's vciRpcCaller.CallRpc's configd.Context ->
// vci.RPCMetadata translation.
type RPCMetadata = vci.RPCMetadata

// CallRemoteRPC dials the system VCI bus and invokes module/rpcName
// against whatever process currently owns it, storing the decoded
// result into out (grounded on server/dispatcher.go's vciRpcCaller and
// session/session_internal.go's ad-hoc vci.Dial/Call use for
// operational-state merges). This is the one direction of
// subscribe_rpc's cross-process delivery this module implements with
// vci directly: calling into a peer's registered RPC, as opposed to
// exposing this process's own subscribe_rpc handlers to non-tsd VCI
// callers, which would need a compile-time method-per-RPC provider
// object that this module's dynamically-registered-by-path handlers
// (see client.SubscribeRPC) don't have -- see DESIGN.md.
func CallRemoteRPC(module, rpcName string, meta RPCMetadata, input interface{}, out interface{}) error {
	c, err := vci.Dial()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.CallWithMetadata(module, rpcName, meta, input).StoreOutputInto(out)
}

// CallRemoteRPCAnonymous is CallRemoteRPC without caller metadata, for
// contexts (background subscribers, replay) that have no originating
// uid/user to attribute the call to.
func CallRemoteRPCAnonymous(module, rpcName string, input interface{}, out interface{}) error {
	c, err := vci.Dial()
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Call(module, rpcName, input).StoreOutputInto(out)
}
