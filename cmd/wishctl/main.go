package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"wishboard/board"
	"wishboard/domain"
)

const usage = `usage: wishctl [flags] <command>

commands:
  list                 show the board grouped by column
  add <text>           post a new wish
  move <id> <status>   set status to todo, doing or done
  rm <id>              delete a wish
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("wishctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	baseURL := fs.String("url", envOr("WISHES_URL", "http://localhost:8080"), "wishes API base URL")
	revert := fs.Bool("revert", false, "restore local state when a background change fails")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errUsage
	}

	logger := log.New()
	logger.SetOutput(stderr)
	var (
		mu       sync.Mutex
		failures []error
	)
	opts := []board.Option{
		board.WithLogger(logger),
		board.WithFailureHook(func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}),
	}
	if *revert {
		opts = append(opts, board.WithRevertOnFailure())
	}
	b := board.New(*baseURL, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd := rest[0]; cmd {
	case "list":
		if err := b.Load(ctx); err != nil {
			return err
		}
		printColumns(stdout, b.Columns())
	case "add":
		text := strings.Join(rest[1:], " ")
		w, err := b.Add(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "added %s\n", w.ID)
	case "move":
		if len(rest) != 3 {
			fs.Usage()
			return errUsage
		}
		status, err := domain.ParseStatus(rest[2])
		if err != nil {
			return err
		}
		if err := b.Load(ctx); err != nil {
			return err
		}
		if err := b.Move(ctx, rest[1], status); err != nil {
			return err
		}
		b.Wait()
		if len(failures) > 0 {
			return errors.Join(failures...)
		}
		fmt.Fprintf(stdout, "moved %s to %s\n", rest[1], status)
	case "rm":
		if len(rest) != 2 {
			fs.Usage()
			return errUsage
		}
		if err := b.Load(ctx); err != nil {
			return err
		}
		if err := b.Remove(ctx, rest[1]); err != nil {
			return err
		}
		b.Wait()
		if len(failures) > 0 {
			return errors.Join(failures...)
		}
		fmt.Fprintf(stdout, "removed %s\n", rest[1])
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return errUsage
	}
	return nil
}

func printColumns(w io.Writer, cols []board.Column) {
	for _, col := range cols {
		fmt.Fprintf(w, "%s (%d)\n", col.Title, len(col.Wishes))
		for _, wish := range col.Wishes {
			fmt.Fprintf(w, "  %s  %s\n", wish.ID, wish.Text)
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
