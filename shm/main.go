// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package shm

import (
	"encoding/binary"
	"path/filepath"

	"github.com/danos/tsd/errkind"
)

// MaxModules bounds the main region's module directory. The region has
// a fixed layout (§4.D: "Main region has a fixed layout so its mapping
// never needs to move for readers"), so this is a compile-time cap
// rather than a grow-on-demand slice.
const MaxModules = 256

const (
	moduleNameLen     = 64
	moduleRevisionLen = 32
	moduleRecordSize  = moduleNameLen + moduleRevisionLen + 4 + 4 + 8 + 8 + 8 + 8 + 8
	mainMagic         = 0x74736431 // "tsd1"
	mainHeaderSize    = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 4 // magic,version,5 counters,moduleCount
	mainRegionSize    = mainHeaderSize + MaxModules*moduleRecordSize
)

// ModuleRecord is the fixed-size per-module directory entry (§4.D.1):
// name/revision, flags, replay-support, and the extended-region offsets
// of the four subscription list heads (-1 means "no subscriptions").
type ModuleRecord struct {
	Name           string
	Revision       string
	Flags          uint32
	ReplaySupport  bool
	ChangeSubHead  int64
	OperSubHead    int64
	RPCSubHead     int64
	NotifSubHead   int64
	DataLockHeader int64 // offset of the per-module data-lock header, see package lock
}

// MainRegionPath returns the canonical path of the installation's main
// region file (§4.D "Naming": a function of the installation prefix).
func MainRegionPath(repoRoot string) string {
	return filepath.Join(repoRoot, "shm", "tsd.main")
}

// MainRegion is the typed view over the main shared-memory segment.
type MainRegion struct {
	r *Region
}

// OpenMain opens or creates the main region under repoRoot.
func OpenMain(repoRoot string) (*MainRegion, error) {
	r, err := Open(MainRegionPath(repoRoot), mainRegionSize)
	if err != nil {
		return nil, err
	}
	m := &MainRegion{r: r}
	if binary.LittleEndian.Uint32(r.Bytes()[0:4]) != mainMagic {
		m.init()
	}
	return m, nil
}

func (m *MainRegion) init() {
	b := m.r.Bytes()
	binary.LittleEndian.PutUint32(b[0:4], mainMagic)
	binary.LittleEndian.PutUint32(b[4:8], 1)
	binary.LittleEndian.PutUint64(b[8:16], 1)  // nextConnID
	binary.LittleEndian.PutUint64(b[16:24], 1) // nextSessionID
	binary.LittleEndian.PutUint64(b[24:32], 1) // nextSubID
	binary.LittleEndian.PutUint64(b[32:40], 1) // nextPipeID
	binary.LittleEndian.PutUint64(b[40:48], 1) // nextEventID
	binary.LittleEndian.PutUint32(b[48:52], 0) // moduleCount
	for i := 0; i < MaxModules; i++ {
		rec := m.recordBytes(i)
		base := moduleNameLen + moduleRevisionLen + 8
		putInt64(rec[base:], -1)
		putInt64(rec[base+8:], -1)
		putInt64(rec[base+16:], -1)
		putInt64(rec[base+24:], -1)
		putInt64(rec[base+32:], -1)
	}
}

func putInt64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
func getInt64(b []byte) int64    { return int64(binary.LittleEndian.Uint64(b)) }

func (m *MainRegion) recordBytes(idx int) []byte {
	off := mainHeaderSize + idx*moduleRecordSize
	return m.r.Bytes()[off : off+moduleRecordSize]
}

// nextCounter bumps one of the five monotonic counters, wrapping to 1
// when it would overflow a uint32-visible id space (§4.H: "when the
// host-unique counter approaches its maximum, it wraps to one").
func (m *MainRegion) nextCounter(wordOff int) uint64 {
	b := m.r.Bytes()[wordOff : wordOff+8]
	v := binary.LittleEndian.Uint64(b)
	next := v + 1
	if next >= 1<<32 {
		next = 1
	}
	binary.LittleEndian.PutUint64(b, next)
	return v
}

// NextConnID/NextSessionID/NextSubID/NextPipeID/NextEventID allocate the next
// monotonic id. Callers must hold the create-lock or an equivalent
// serializing lock (package lock) around the read-modify-write.
func (m *MainRegion) NextConnID() uint64    { return m.nextCounter(8) }
func (m *MainRegion) NextSessionID() uint64 { return m.nextCounter(16) }
func (m *MainRegion) NextSubID() uint64     { return m.nextCounter(24) }
func (m *MainRegion) NextPipeID() uint64    { return m.nextCounter(32) }
func (m *MainRegion) NextEventID() uint64   { return m.nextCounter(40) }

func (m *MainRegion) moduleCount() int {
	return int(binary.LittleEndian.Uint32(m.r.Bytes()[48:52]))
}

func (m *MainRegion) setModuleCount(n int) {
	binary.LittleEndian.PutUint32(m.r.Bytes()[48:52], uint32(n))
}

func readCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func writeCString(b []byte, s string) error {
	if len(s) >= len(b) {
		return errkind.New(errkind.InvalidArg, "", "string %q exceeds fixed field width %d", s, len(b))
	}
	for i := range b {
		b[i] = 0
	}
	copy(b, s)
	return nil
}

func decodeRecord(b []byte) ModuleRecord {
	name := readCString(b[0:moduleNameLen])
	rev := readCString(b[moduleNameLen : moduleNameLen+moduleRevisionLen])
	off := moduleNameLen + moduleRevisionLen
	flags := binary.LittleEndian.Uint32(b[off : off+4])
	replay := binary.LittleEndian.Uint32(b[off+4:off+8]) != 0
	return ModuleRecord{
		Name:           name,
		Revision:       rev,
		Flags:          flags,
		ReplaySupport:  replay,
		ChangeSubHead:  getInt64(b[off+8 : off+16]),
		OperSubHead:    getInt64(b[off+16 : off+24]),
		RPCSubHead:     getInt64(b[off+24 : off+32]),
		NotifSubHead:   getInt64(b[off+32 : off+40]),
		DataLockHeader: getInt64(b[off+40 : off+48]),
	}
}

func encodeRecord(b []byte, rec ModuleRecord) error {
	if err := writeCString(b[0:moduleNameLen], rec.Name); err != nil {
		return err
	}
	if err := writeCString(b[moduleNameLen:moduleNameLen+moduleRevisionLen], rec.Revision); err != nil {
		return err
	}
	off := moduleNameLen + moduleRevisionLen
	binary.LittleEndian.PutUint32(b[off:off+4], rec.Flags)
	v := uint32(0)
	if rec.ReplaySupport {
		v = 1
	}
	binary.LittleEndian.PutUint32(b[off+4:off+8], v)
	putInt64(b[off+8:off+16], rec.ChangeSubHead)
	putInt64(b[off+16:off+24], rec.OperSubHead)
	putInt64(b[off+24:off+32], rec.RPCSubHead)
	putInt64(b[off+32:off+40], rec.NotifSubHead)
	putInt64(b[off+40:off+48], rec.DataLockHeader)
	return nil
}

// FindModule returns the record for name, or ok=false.
func (m *MainRegion) FindModule(name string) (ModuleRecord, bool) {
	for i := 0; i < m.moduleCount(); i++ {
		rec := decodeRecord(m.recordBytes(i))
		if rec.Name == name {
			return rec, true
		}
	}
	return ModuleRecord{}, false
}

// PutModule inserts or updates the directory entry for rec.Name. Callers
// must hold the create-lock while mutating the directory.
func (m *MainRegion) PutModule(rec ModuleRecord) error {
	for i := 0; i < m.moduleCount(); i++ {
		existing := decodeRecord(m.recordBytes(i))
		if existing.Name == rec.Name {
			return encodeRecord(m.recordBytes(i), rec)
		}
	}
	n := m.moduleCount()
	if n >= MaxModules {
		return errkind.New(errkind.OperationFailed, "", "module directory full (max %d)", MaxModules)
	}
	if err := encodeRecord(m.recordBytes(n), rec); err != nil {
		return err
	}
	m.setModuleCount(n + 1)
	return nil
}

// Modules returns a snapshot of every directory entry.
func (m *MainRegion) Modules() []ModuleRecord {
	out := make([]ModuleRecord, 0, m.moduleCount())
	for i := 0; i < m.moduleCount(); i++ {
		out = append(out, decodeRecord(m.recordBytes(i)))
	}
	return out
}

// Close releases the underlying mapping.
func (m *MainRegion) Close() error { return m.r.Close() }
