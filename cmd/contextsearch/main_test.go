package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foxText = "The quick brown fox. The fox ran."

func writeDoc(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fox.txt")
	require.NoError(t, os.WriteFile(p, []byte(foxText), 0o644))
	return p
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunLocal(t *testing.T) {
	doc := writeDoc(t)

	code, out, _ := runCLI("-file", doc, "-context", "1", "fox", "ran")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "fox: 2 occurrence(s)\n"+
		"  1. brown fox. The\n"+
		"  2. The fox ran\n"+
		"ran: 1 occurrence(s)\n"+
		"  1. fox ran.\n", out)

	code, out, _ = runCLI("-file", doc, "-context", "100", "FOX")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "  1. "+foxText+"\n")

	code, out, _ = runCLI("-file", doc, "wolf", "brown fox")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "wolf: 0 occurrence(s)\nbrown fox: 0 occurrence(s)\n", out)
}

func TestRunBadInput(t *testing.T) {
	doc := writeDoc(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no words", []string{"-file", doc}},
		{"negative context", []string{"-file", doc, "-context", "-1", "fox"}},
		{"no source", []string{"fox"}},
		{"both sources", []string{"-file", doc, "-rpc", "127.0.0.1:1", "fox"}},
		{"unknown flag", []string{"-bogus", "fox"}},
		{"unknown compression", []string{"-file", doc, "-compression", "brotli", "fox"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			assert.Equal(t, exitBadInput, code, stderr)
		})
	}
}

func TestRunLoadFailure(t *testing.T) {
	code, _, stderr := runCLI("-file", filepath.Join(t.TempDir(), "missing.txt"), "fox")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "missing.txt")
}

func TestRunRemote(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := rpc.NewServer()
	searcher.RegisterRPC(srv, searcher.New(index.New(foxText)))
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)

	code, out, stderr := runCLI("-rpc", ln.Addr().String(), "-context", "0", "the")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "the: 2 occurrence(s)\n  1. The\n  2. The\n", out)

	code, _, _ = runCLI("-rpc", ln.Addr().String(), "-context", "101", "the")
	assert.Equal(t, exitBadInput, code)
}
