package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
	reportsvc "github.com/trezcool/trainingops/services/report"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted: confirmation did not match")
)

// backendOpener connects to the backend with the anonymous credential, or the service-role one when admin is set.
type backendOpener func(admin bool) (query.Backend, func() error, error)

type commandLine struct {
	conf    *core.Config
	logger  core.Logger
	open    backendOpener
	in      io.Reader
	stdinFd int
	out     io.Writer
	errOut  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.errOut, "Usage: admin COMMAND [flags]")
	fmt.Fprintln(cli.errOut, "Commands:")
	fmt.Fprintln(cli.errOut, "  count -table TABLE [-where FILTER]...                 - count rows")
	fmt.Fprintln(cli.errOut, "  list -table TABLE [-select COLS] [-where FILTER]... [-order COLS] [-limit N] - list rows")
	fmt.Fprintln(cli.errOut, "  breakdown                                            - training records per location")
	fmt.Fprintln(cli.errOut, "  sample [-limit N]                                    - sample training records")
	fmt.Fprintln(cli.errOut, "  missing-expiry [-limit N]                            - completed records with no expiry date")
	fmt.Fprintln(cli.errOut, "  staff -name NAME                                     - look a staff profile up by name")
	fmt.Fprintln(cli.errOut, "  location-courses -location ID                        - courses assigned to a location")
	fmt.Fprintln(cli.errOut, "  purge -table TABLE [-yes]                            - delete EVERY row of a table (service role)")
	fmt.Fprintln(cli.errOut, "  verify -table TABLE [-want N] [-where FILTER]...     - check a row count")
	fmt.Fprintln(cli.errOut, "Filters: col=val, col!=val, col:null, col:notnull")
	fmt.Fprintln(cli.errOut, "Every command accepts -format text|json|yaml.")
}

func (cli *commandLine) newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.errOut)
	format := fs.String("format", cli.conf.Report.Format, "Output format: text, json or yaml.")
	return fs, format
}

func (cli *commandLine) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errHelp
		}
		return core.NewArgumentError("%s: %v", fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return core.NewArgumentError("%s: unexpected arguments %v", fs.Name(), fs.Args())
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[1] {
	case "count":
		fs, format := cli.newFlagSet("count")
		table := fs.String("table", "", "The table to count.")
		var filters query.Filters
		fs.Var(&filters, "where", "Filter (repeatable): col=val, col!=val, col:null, col:notnull.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		if *table == "" {
			fs.Usage()
			return errHelp
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.count(ctx, svc, p, *table, filters)
		})

	case "list":
		fs, format := cli.newFlagSet("list")
		table := fs.String("table", "", "The table to read.")
		cols := fs.String("select", "", "Comma-separated columns to return (default all).")
		order := fs.String("order", "", "Comma-separated ordering; prefix a column with - to sort descending.")
		limit := fs.Int("limit", cli.conf.Report.SampleLimit, "Maximum number of rows (0 for no limit).")
		var filters query.Filters
		fs.Var(&filters, "where", "Filter (repeatable): col=val, col!=val, col:null, col:notnull.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		if *table == "" {
			fs.Usage()
			return errHelp
		}
		columns, err := query.ParseColumns(*cols)
		if err != nil {
			return err
		}
		orderings, err := query.ParseOrdering(*order)
		if err != nil {
			return err
		}
		q := query.From(*table, filters...).Select(columns...).OrderBy(orderings...).Take(*limit)
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.list(ctx, svc, p, q)
		})

	case "breakdown":
		fs, format := cli.newFlagSet("breakdown")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.breakdown(ctx, svc, p)
		})

	case "sample":
		fs, format := cli.newFlagSet("sample")
		limit := fs.Int("limit", cli.conf.Report.SampleLimit, "Number of records.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.sample(ctx, svc, p, *limit)
		})

	case "missing-expiry":
		fs, format := cli.newFlagSet("missing-expiry")
		limit := fs.Int("limit", 0, "Maximum number of records (0 for no limit).")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.missingExpiry(ctx, svc, p, *limit)
		})

	case "staff":
		fs, format := cli.newFlagSet("staff")
		name := fs.String("name", "", "The staff member's full name.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		if core.CleanString(*name) == "" {
			fs.Usage()
			return errHelp
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.staff(ctx, svc, p, *name)
		})

	case "location-courses":
		fs, format := cli.newFlagSet("location-courses")
		location := fs.String("location", "", "The location id.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		if core.CleanString(*location) == "" {
			fs.Usage()
			return errHelp
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.locationCourses(ctx, svc, p, *location)
		})

	case "purge":
		fs, format := cli.newFlagSet("purge")
		table := fs.String("table", "", "The table to empty. Every row is deleted; there is no undo.")
		yes := fs.Bool("yes", false, "Skip the confirmation prompt.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		if *table == "" {
			fs.Usage()
			return errHelp
		}
		if !training.IsKnownTable(*table) {
			return core.NewArgumentError("purge: unknown table %q (known: %s)", *table, strings.Join(training.Tables, ", "))
		}
		if !*yes {
			if err := cli.confirm(*table); err != nil {
				return err
			}
		}
		return cli.withReport(*format, true, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.purge(ctx, svc, p, *table)
		})

	case "verify":
		fs, format := cli.newFlagSet("verify")
		table := fs.String("table", "", "The table to count.")
		want := fs.Int("want", 0, "The expected row count.")
		var filters query.Filters
		fs.Var(&filters, "where", "Filter (repeatable): col=val, col!=val, col:null, col:notnull.")
		if err := cli.parse(fs, args[2:]); err != nil {
			return err
		}
		if *table == "" {
			fs.Usage()
			return errHelp
		}
		return cli.withReport(*format, false, func(svc *training.Service, p *reportsvc.Printer) error {
			return cli.verify(ctx, svc, p, *table, *want, filters)
		})

	default:
		cli.printUsage()
		return errHelp
	}
}

// withReport opens the backend, builds the service and printer, and runs fn.
func (cli *commandLine) withReport(format string, admin bool, fn func(*training.Service, *reportsvc.Printer) error) error {
	p, err := reportsvc.NewPrinter(cli.out, format)
	if err != nil {
		return err
	}
	backend, closeFn, err := cli.open(admin)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(training.NewService(backend, cli.logger), p)
}

// confirm asks for the table name on an interactive terminal; non-interactive input must pass -yes.
func (cli *commandLine) confirm(table string) error {
	if !isTerminalFunc(cli.stdinFd) {
		return core.NewArgumentError("purge: refusing to delete from %q without -yes on non-interactive input", table)
	}
	fmt.Fprintf(cli.errOut, "This deletes EVERY row of %q and cannot be undone.\nType the table name to confirm: ", table)
	line, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if strings.TrimSpace(line) != table {
		return errAborted
	}
	return nil
}
