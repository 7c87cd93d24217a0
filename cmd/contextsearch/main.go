// Command contextsearch prints every occurrence of one or more words with
// surrounding context, either from a local document or from a running
// searcher over the internal RPC protocol.
//
// Usage:
//
//	contextsearch -file moby.txt -context 3 whale sea
//	contextsearch -rpc localhost:9100 -context 3 whale
//
// Exit status is 1 when the document cannot be loaded or the server cannot
// be reached, and 2 on bad input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/rpc"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitBadInput = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// lookup answers one word query.
type lookup func(ctx context.Context, word string, width int) (*proto.SearchResponse, error)

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("contextsearch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "document to index")
	compression := fs.String("compression", loader.CompressionAuto, "auto, none, gzip, zstd or lz4")
	width := fs.Int("context", 3, "words of context on each side")
	remote := fs.String("rpc", "", "query a running searcher at this RPC address instead of -file")
	timeout := fs.Duration("timeout", 5*time.Second, "RPC dial and call timeout")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	logger.SetupWriter(stderr, *logLevel, "text")

	words := fs.Args()
	switch {
	case len(words) == 0:
		fmt.Fprintln(stderr, "contextsearch: at least one word is required")
		return exitBadInput
	case *width < 0:
		fmt.Fprintf(stderr, "contextsearch: context must be non-negative, got %d\n", *width)
		return exitBadInput
	case (*file == "") == (*remote == ""):
		fmt.Fprintln(stderr, "contextsearch: exactly one of -file or -rpc is required")
		return exitBadInput
	}

	var find lookup
	if *remote != "" {
		client, err := rpc.Dial(*remote, *timeout)
		if err != nil {
			fmt.Fprintf(stderr, "contextsearch: %v\n", err)
			return exitFailure
		}
		defer client.Close()
		find = remoteLookup(client, *timeout)
	} else {
		doc, err := loader.Load(ctx, loader.FileSource{Path: *file}, loader.Options{Compression: *compression})
		if err != nil {
			fmt.Fprintf(stderr, "contextsearch: %v\n", err)
			if apperrors.Is(err, apperrors.ErrInvalidInput) {
				return exitBadInput
			}
			return exitFailure
		}
		s := searcher.Build(ctx, doc, nil, searcher.WithContextLimits(3, max(*width, 3)))
		find = localLookup(s)
	}

	for _, word := range words {
		resp, err := find(ctx, word, *width)
		if err != nil {
			fmt.Fprintf(stderr, "contextsearch: %s: %v\n", word, err)
			if apperrors.Is(err, apperrors.ErrInvalidInput) {
				return exitBadInput
			}
			return exitFailure
		}
		printHits(stdout, resp)
	}
	return exitOK
}

func localLookup(s *searcher.Searcher) lookup {
	return func(ctx context.Context, word string, width int) (*proto.SearchResponse, error) {
		res, _, err := s.Search(ctx, word, width)
		if err != nil {
			return nil, err
		}
		return &proto.SearchResponse{
			Word:      res.Query,
			Canonical: res.Canonical,
			Context:   res.Context,
			TotalHits: res.TotalHits,
			Hits:      res.Hits,
		}, nil
	}
}

func remoteLookup(client *rpc.Client, timeout time.Duration) lookup {
	return func(ctx context.Context, word string, width int) (*proto.SearchResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var resp proto.SearchResponse
		err := client.Call(ctx, proto.MethodSearch, proto.SearchRequest{Word: word, Context: &width}, &resp)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timed out after %s: %w", timeout, err)
		}
		return &resp, err
	}
}

func printHits(w io.Writer, resp *proto.SearchResponse) {
	fmt.Fprintf(w, "%s: %d occurrence(s)\n", resp.Word, resp.TotalHits)
	for i, hit := range resp.Hits {
		fmt.Fprintf(w, "  %d. %s\n", i+1, hit)
	}
}

