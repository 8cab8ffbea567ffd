package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"trashcan/internal/exitcodes"
	"trashcan/internal/history"
	"trashcan/internal/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trashcan-query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "/var/lib/trashcan/history.db", "Path to deletion history database")
	recent := fs.Int("recent", 0, "Show N most recent deletions")
	stats := fs.Bool("stats", false, "Show deletion statistics")
	status := fs.String("status", "", "Filter by status (ok, error)")
	pathPattern := fs.String("path", "", "Filter by path pattern (SQL LIKE syntax)")
	limit := fs.Int("limit", 100, "Maximum records for -status and -path")
	days := fs.Int("days", 30, "Number of days for statistics")
	prune := fs.Int("prune", 0, "Delete records older than N days, then vacuum")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")
	if err := fs.Parse(args); err != nil {
		return exitcodes.InvalidConfig
	}

	logger := log.New(stderr, "query")

	db, err := history.Open(*dbPath)
	if err != nil {
		logger.Error().Err(err).Str("db", *dbPath).Msg("open database")
		return exitcodes.RuntimeError
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	q := &query{db: db, out: stdout, json: *jsonOutput}

	switch {
	case *prune > 0:
		err = q.prune(*prune)
	case *stats:
		err = q.stats(*days)
	case *recent > 0:
		err = q.records(fmt.Sprintf("Most recent %d deletions:", *recent), func() ([]history.Record, error) {
			return db.Recent(*recent)
		})
	case *status != "":
		err = q.records("Deletions with status: "+*status, func() ([]history.Record, error) {
			return db.ByStatus(*status, *limit)
		})
	case *pathPattern != "":
		err = q.records("Deletions matching path pattern: "+*pathPattern, func() ([]history.Record, error) {
			return db.ByPath(*pathPattern, *limit)
		})
	default:
		fs.Usage()
		fmt.Fprintln(stderr, "\nExamples:")
		fmt.Fprintln(stderr, "  trashcan-query -recent 10            # Show 10 most recent deletions")
		fmt.Fprintln(stderr, "  trashcan-query -stats -days 7        # Show statistics for the last week")
		fmt.Fprintln(stderr, "  trashcan-query -status error         # Show failed deletions")
		fmt.Fprintln(stderr, "  trashcan-query -path '/var/tmp/%'    # Show deletions under /var/tmp")
		fmt.Fprintln(stderr, "  trashcan-query -prune 90             # Drop records older than 90 days")
		return exitcodes.InvalidConfig
	}

	if err != nil {
		logger.Error().Err(err).Msg("query failed")
		return exitcodes.RuntimeError
	}
	return exitcodes.Success
}

type query struct {
	db   *history.DB
	out  io.Writer
	json bool
}

func (q *query) writeJSON(v any) error {
	enc := json.NewEncoder(q.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (q *query) records(title string, fetch func() ([]history.Record, error)) error {
	records, err := fetch()
	if err != nil {
		return err
	}
	if q.json {
		return q.writeJSON(records)
	}

	fmt.Fprintf(q.out, "%s\n\n", title)
	if len(records) == 0 {
		fmt.Fprintln(q.out, "No records found")
		return nil
	}

	w := tabwriter.NewWriter(q.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTimestamp\tStatus\tStrategy\tDuration\tPath\tError")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t--------\t--------\t----\t-----")
	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Status, r.Strategy,
			r.Duration, r.Path, r.ErrorMessage)
	}
	return w.Flush()
}

func (q *query) stats(days int) error {
	stats, err := q.db.Stats(days)
	if err != nil {
		return err
	}
	if q.json {
		return q.writeJSON(stats)
	}

	fmt.Fprintf(q.out, "Deletion Statistics (Last %d days)\n", days)
	fmt.Fprintf(q.out, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(q.out, "Total:            %d\n", stats.Total)
	fmt.Fprintf(q.out, "Succeeded:        %d\n", stats.Succeeded)
	fmt.Fprintf(q.out, "Failed:           %d\n", stats.Failed)
	fmt.Fprintf(q.out, "Average Duration: %s\n", stats.AverageDuration)

	if len(stats.ByStrategy) > 0 {
		fmt.Fprintln(q.out, "\nBy Strategy:")
		strategies := make([]string, 0, len(stats.ByStrategy))
		for s := range stats.ByStrategy {
			strategies = append(strategies, s)
		}
		sort.Strings(strategies)
		for _, s := range strategies {
			fmt.Fprintf(q.out, "  %-28s %d\n", s, stats.ByStrategy[s])
		}
	}
	return nil
}

func (q *query) prune(days int) error {
	removed, err := q.db.DeleteOldRecords(days)
	if err != nil {
		return err
	}
	if err := q.db.Vacuum(); err != nil {
		return err
	}
	if q.json {
		return q.writeJSON(map[string]int64{"removed": removed})
	}
	fmt.Fprintf(q.out, "Removed %d records older than %d days\n", removed, days)
	return nil
}
