// bastion-cleanup is a one-shot maintenance utility: it deletes
// session documents matching a filter keyword and reports the count.
// The server's own reaper handles suspended sessions automatically;
// this tool exists for operators who need a broader broom.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pixil98/go-log"

	"github.com/pixil98/go-bastion/internal/store"
)

const usage = `usage: bastion-cleanup -filter <keyword> [flags]

Filter keywords:
  orphaned   suspended sessions, regardless of age
  lobby      lobbies nobody ever started, past -older-than
  old        completed sessions
  stale      suspended or saved sessions past -older-than
  all        every session past -older-than

Flags:
`

func main() {
	var (
		filter    = flag.String("filter", "", "which sessions to delete")
		olderThan = flag.Duration("older-than", 24*time.Hour, "minimum age, by last update")
		path      = flag.String("path", "", "file store directory")
		dsn       = flag.String("dsn", "", "postgres connection string")
		dryRun    = flag.Bool("dry-run", false, "report what would be deleted without deleting")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.NewLogger()

	f, err := buildFilter(*filter, *olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	st, err := buildStore(*path, *dsn)
	if err != nil {
		logger.WithError(err).Fatal("opening session store")
	}

	ctx := log.SetLogger(context.Background(), logger)
	docs, err := st.List(ctx, f)
	if err != nil {
		logger.WithError(err).Fatal("listing sessions")
	}

	removed := 0
	for _, doc := range docs {
		if *dryRun {
			logger.Infof("would delete %s (%s, updated %s)", doc.Code, doc.Status, doc.UpdatedAt.Format(time.RFC3339))
			removed++
			continue
		}
		if err := st.Delete(ctx, doc.Code); err != nil {
			logger.Errorf("deleting %s: %s", doc.Code, err)
			continue
		}
		removed++
	}

	if *dryRun {
		logger.Infof("%d sessions match", removed)
	} else {
		logger.Infof("deleted %d sessions", removed)
	}
}

func buildFilter(keyword string, olderThan time.Duration) (store.Filter, error) {
	cutoff := time.Now().Add(-olderThan)

	switch keyword {
	case "orphaned":
		return store.Filter{Statuses: []store.Status{store.StatusSuspended}}, nil
	case "lobby":
		return store.Filter{Statuses: []store.Status{store.StatusLobby}, UpdatedBefore: cutoff}, nil
	case "old":
		return store.Filter{Statuses: []store.Status{store.StatusCompleted}}, nil
	case "stale":
		return store.Filter{Statuses: []store.Status{store.StatusSuspended, store.StatusSaved}, UpdatedBefore: cutoff}, nil
	case "all":
		return store.Filter{UpdatedBefore: cutoff}, nil
	case "":
		return store.Filter{}, fmt.Errorf("-filter is required")
	default:
		return store.Filter{}, fmt.Errorf("unknown filter keyword %q", keyword)
	}
}

func buildStore(path, dsn string) (store.SessionStore, error) {
	switch {
	case path != "" && dsn != "":
		return nil, fmt.Errorf("set -path or -dsn, not both")
	case path != "":
		return store.NewFileStore(path)
	case dsn != "":
		return store.NewPgStoreFromDSN(dsn)
	default:
		return nil, fmt.Errorf("one of -path or -dsn is required")
	}
}
