// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package shm

import (
	"encoding/binary"
	"encoding/hex"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// ChannelKind distinguishes the four per-subscription region flavors of
// §4.D.3.
type ChannelKind int

const (
	ChannelChange ChannelKind = iota
	ChannelOperGet
	ChannelRPC
	ChannelNotif
)

func (k ChannelKind) suffix() string {
	switch k {
	case ChannelChange:
		return "change"
	case ChannelOperGet:
		return "oper"
	case ChannelRPC:
		return "rpc"
	case ChannelNotif:
		return "notif"
	}
	return "unknown"
}

// SubRegionName derives the per-subscription segment's file name from
// its module and (for oper/rpc channels) path, per §4.D "Naming": "named
// by module (or path hash) and channel". Paths can be long and contain
// characters unsuited to a filename, so they're folded through blake2b
// rather than used verbatim.
func SubRegionName(module, path string, kind ChannelKind) string {
	if path == "" {
		return module + "." + kind.suffix()
	}
	sum := blake2b.Sum256([]byte(path))
	return module + "." + hex.EncodeToString(sum[:8]) + "." + kind.suffix()
}

func SubRegionPath(repoRoot, module, path string, kind ChannelKind) string {
	return filepath.Join(repoRoot, "shm", "sub", SubRegionName(module, path, kind))
}

const (
	subMagic      = 0x74736473 // "tsds"
	subHeaderSize = 4 + 4 + 8 + 4 + 4 + 4 + 4 // magic,version,eventID,priority,opCode,flags,payloadLen
	subPayloadCap = 1 << 16                    // 64 KiB inline payload
	subRegionSize = subHeaderSize + subPayloadCap
)

// SubRegion is one per-subscription delivery channel segment: a small
// request/response header plus an inline serialized payload (the edit,
// diff, or RPC tree for this event).
type SubRegion struct {
	r *Region
}

func OpenSub(repoRoot, module, path string, kind ChannelKind) (*SubRegion, error) {
	r, err := Open(SubRegionPath(repoRoot, module, path, kind), subRegionSize)
	if err != nil {
		return nil, err
	}
	s := &SubRegion{r: r}
	if binary.LittleEndian.Uint32(r.Bytes()[0:4]) != subMagic {
		binary.LittleEndian.PutUint32(r.Bytes()[0:4], subMagic)
		binary.LittleEndian.PutUint32(r.Bytes()[4:8], 1)
	}
	return s, nil
}

// EventHeader is the decoded request/response state header (§4.D.3).
type EventHeader struct {
	EventID    uint64
	Priority   int32
	OpCode     int32
	Flags      uint32
	PayloadLen uint32
}

func (s *SubRegion) SetHeader(h EventHeader) {
	b := s.r.Bytes()
	binary.LittleEndian.PutUint64(b[8:16], h.EventID)
	binary.LittleEndian.PutUint32(b[16:20], uint32(h.Priority))
	binary.LittleEndian.PutUint32(b[20:24], uint32(h.OpCode))
	binary.LittleEndian.PutUint32(b[24:28], h.Flags)
	binary.LittleEndian.PutUint32(b[28:32], h.PayloadLen)
}

func (s *SubRegion) Header() EventHeader {
	b := s.r.Bytes()
	return EventHeader{
		EventID:    binary.LittleEndian.Uint64(b[8:16]),
		Priority:   int32(binary.LittleEndian.Uint32(b[16:20])),
		OpCode:     int32(binary.LittleEndian.Uint32(b[20:24])),
		Flags:      binary.LittleEndian.Uint32(b[24:28]),
		PayloadLen: binary.LittleEndian.Uint32(b[28:32]),
	}
}

// SetPayload writes data into the inline payload area and updates
// PayloadLen, erroring if data exceeds the fixed capacity.
func (s *SubRegion) SetPayload(data []byte) error {
	if len(data) > subPayloadCap {
		return errTooLarge(len(data), subPayloadCap)
	}
	b := s.r.Bytes()
	copy(b[subHeaderSize:], data)
	binary.LittleEndian.PutUint32(b[28:32], uint32(len(data)))
	return nil
}

func (s *SubRegion) Payload() []byte {
	h := s.Header()
	b := s.r.Bytes()
	return b[subHeaderSize : subHeaderSize+int(h.PayloadLen)]
}

func (s *SubRegion) Close() error { return s.r.Close() }

type payloadTooLargeError struct {
	got, cap int
}

func (e *payloadTooLargeError) Error() string {
	return "shm: payload too large for inline sub region"
}

func errTooLarge(got, cap int) error { return &payloadTooLargeError{got, cap} }
