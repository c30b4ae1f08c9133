// Command outbox-cleanup deletes old COMPLETED (and optionally DEAD_LETTER)
// rows from a non-partitioned PostgreSQL outbox table.
//
// It wraps postgres.CleanupMaintainer for use in cron jobs when the
// application itself should not run DELETE statements. Tables managed with
// native PostgreSQL partitioning should rotate partitions instead of
// running this command.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/velmie/outbox"
	"github.com/velmie/outbox/postgres"
)

const exitUsage = 2

type stdLogger struct {
	logger  *log.Logger
	verbose bool
}

func (l stdLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	l.logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

func (l stdLogger) Info(msg string, args ...any)  { l.logger.Printf("INFO %s %s", msg, formatArgs(args)) }
func (l stdLogger) Warn(msg string, args ...any)  { l.logger.Printf("WARN %s %s", msg, formatArgs(args)) }
func (l stdLogger) Error(msg string, args ...any) { l.logger.Printf("ERROR %s %s", msg, formatArgs(args)) }

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", args[i], val))
	}

	return strings.Join(pairs, " ")
}

func main() {
	var (
		dsn               string
		table             string
		retention         time.Duration
		checkEvery        time.Duration
		limit             int
		lockName          string
		includeDeadLetter bool
		once              bool
		verbose           bool
	)

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL connection string")
	flag.StringVar(&table, "table", "", "Outbox table name (defaults to outbox_events)")
	flag.DurationVar(&retention, "retention", 0, "Delete rows older than this duration")
	flag.DurationVar(&checkEvery, "check-every", time.Hour, "How often to run cleanup")
	flag.IntVar(&limit, "limit", 0, "Max rows deleted per run (0 uses default)")
	flag.StringVar(&lockName, "lock-name", "", "Advisory lock name (optional)")
	flag.BoolVar(&includeDeadLetter, "include-dead-letter", false, "Delete DEAD_LETTER rows as well")
	flag.BoolVar(&once, "once", false, "Run once and exit")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}
	if retention <= 0 {
		fmt.Fprintln(os.Stderr, "retention is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(dsn, table, retention, checkEvery, limit, lockName, includeDeadLetter, once, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(
	dsn, table string,
	retention, checkEvery time.Duration,
	limit int,
	lockName string,
	includeDeadLetter, once, verbose bool,
) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	var opts []postgres.Option
	if table != "" {
		opts = append(opts, postgres.WithTable(table))
	}
	store, err := postgres.NewStore(db, opts...)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	logger := stdLogger{logger: log.New(os.Stdout, "", log.LstdFlags), verbose: verbose}
	cfg := postgres.CleanupMaintainerConfig{
		Retention:         retention,
		CheckEvery:        checkEvery,
		Limit:             limit,
		IncludeDeadLetter: includeDeadLetter,
		LockName:          lockName,
		Clock:             outbox.SystemClock{},
		Logger:            logger,
	}
	maintainer, err := postgres.NewCleanupMaintainer(store, cfg)
	if err != nil {
		return fmt.Errorf("init maintainer: %w", err)
	}

	ctx := context.Background()
	if once {
		result, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		if result.Completed > 0 || result.DeadLetter > 0 {
			logger.Info("cleanup done", "completed", result.Completed, "dead_letter", result.DeadLetter)
		}

		return nil
	}

	if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
}
