// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danos/tsd/errkind"
	"github.com/danos/tsd/schema"
	"github.com/danos/tsd/store"
	"github.com/danos/tsd/tree"
)

func ifaceSchema() *schema.Node {
	root := schema.New("", "root", schema.Container)
	ifaces := schema.New("tsd-interfaces", "interfaces", schema.Container)
	iface := schema.New("tsd-interfaces", "interface", schema.List).WithKeys("name")
	iface.AddChild(schema.New("tsd-interfaces", "name", schema.Leaf))
	iface.AddChild(schema.New("tsd-interfaces", "enabled", schema.Leaf))
	ifaces.AddChild(iface)
	root.AddChild(ifaces)
	return root
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	root := ifaceSchema()
	ifacesSch, _ := root.Child("interfaces")
	ifaceSch, _ := ifacesSch.Child("interface")
	nameSch, _ := ifaceSch.Child("name")
	enabledSch, _ := ifaceSch.Child("enabled")

	data := tree.New(root, "")
	ifaces := tree.New(ifacesSch, "")
	data.Attach(ifaces, tree.PosLast, nil)
	eth0 := tree.New(ifaceSch, "")
	eth0.Attach(tree.New(nameSch, "eth0"), tree.PosLast, nil)
	eth0.Attach(tree.New(enabledSch, "true"), tree.PosLast, nil)
	ifaces.Attach(eth0, tree.PosLast, nil)

	encoded, err := store.Encode(data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := store.Decode(encoded, root)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotIfaces, ok := decoded.ChildByName("interfaces")
	if !ok {
		t.Fatal("expected interfaces container")
	}
	gotIface, ok := gotIfaces.ChildByName("interface")
	if !ok {
		t.Fatal("expected interface list entry")
	}
	gotName, ok := gotIface.ChildByName("name")
	if !ok || gotName.Value != "eth0" {
		t.Fatalf("expected name=eth0, got %+v", gotName)
	}
}

func TestEncodeSortsSystemOrderedListsNaturally(t *testing.T) {
	root := ifaceSchema()
	ifacesSch, _ := root.Child("interfaces")
	ifaceSch, _ := ifacesSch.Child("interface")
	nameSch, _ := ifaceSch.Child("name")

	data := tree.New(root, "")
	ifaces := tree.New(ifacesSch, "")
	data.Attach(ifaces, tree.PosLast, nil)

	// Insert out of natural order: eth10 before eth2. Since this list
	// is not user-ordered, Encode must reorder to eth2, eth10 so two
	// trees with identical content always serialize identically.
	for _, name := range []string{"eth10", "eth2"} {
		n := tree.New(ifaceSch, "")
		n.Attach(tree.New(nameSch, name), tree.PosLast, nil)
		ifaces.Attach(n, tree.PosLast, nil)
	}

	encoded, err := store.Encode(data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	idx2 := indexOfSubstring(string(encoded), "eth2")
	idx10 := indexOfSubstring(string(encoded), "eth10")
	if idx2 < 0 || idx10 < 0 || idx2 > idx10 {
		t.Fatalf("expected eth2 before eth10 in natural-sorted output, got %s", encoded)
	}
}

func indexOfSubstring(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestWriteAtomicAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interfaces.running")
	if err := store.WriteAtomic(path, []byte(`{"a":1}`), store.DefaultPerm()); err != nil {
		t.Fatal(err)
	}
	b, err := store.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":1}` {
		t.Fatalf("unexpected content %q", b)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestReadMissingFileIsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := store.Read(filepath.Join(dir, "missing"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCheckAccessRootAlwaysAllowed(t *testing.T) {
	perm := store.Perm{Mode: 0o000}
	if err := store.CheckAccess(perm, 0, true); err != nil {
		t.Fatalf("root should bypass permission checks: %v", err)
	}
}

func TestCheckAccessDeniedWithoutBit(t *testing.T) {
	perm := store.Perm{Mode: 0o400} // owner-read only, no owner configured
	if err := store.CheckAccess(perm, 1000, true); err == nil {
		t.Fatal("expected write to be denied")
	}
}

func TestNotifWriterRollsAndReads(t *testing.T) {
	dir := t.TempDir()
	root := store.NewRoot(dir)
	w := store.NewNotifWriter(root, "interfaces", store.DefaultPerm())
	if err := w.Write(100, []byte("rec1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(200, []byte("rec2")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := store.ReplayFiles(root, "interfaces", 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 replay file, got %d", len(files))
	}
	recs, err := store.ReadRecords(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || string(recs[0]) != "rec1" || string(recs[1]) != "rec2" {
		t.Fatalf("unexpected records %v", recs)
	}
}
