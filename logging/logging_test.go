// Copyright (c) 2024, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package logging_test

import (
	"strings"
	"testing"

	"github.com/danos/tsd/logging"
)

func TestLevelDefaultsToError(t *testing.T) {
	l := logging.New("test-default")
	if !l.IsEnabled(logging.LevelError) {
		t.Fatal("expected error level enabled by default")
	}
	if l.IsEnabled(logging.LevelDebug) {
		t.Fatal("expected debug level disabled by default")
	}
}

func TestSetLevelAndStatus(t *testing.T) {
	logging.New("test-status")
	logging.SetLevel("test-status", logging.LevelDebug)

	l := logging.New("test-status")
	if !l.IsEnabled(logging.LevelDebug) {
		t.Fatal("expected debug level enabled after SetLevel")
	}
	if !strings.Contains(logging.Status(), "test-status\tdebug") {
		t.Fatalf("expected status to report test-status at debug, got %q", logging.Status())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logging.Level{
		"none": logging.LevelNone, "error": logging.LevelError, "DEBUG": logging.LevelDebug,
	}
	for s, want := range cases {
		got, err := logging.ParseLevel(s)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := logging.ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
