package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type loaderOptions struct {
	Address    string  `short:"a" long:"address"      default:"127.0.0.1:8125" description:"Address of the daemon"`
	Prefix     string  `short:"p" long:"prefix"       default:"loadtest."      description:"Metric name prefix"`
	Rate       float64 `short:"r" long:"rate"         default:"1000"           description:"Datagrams per second across all senders"`
	MaxPacket  int     `          long:"packet-size"  default:"1432"           description:"Maximum datagram payload size"`
	Senders    int     `short:"w" long:"senders"      default:"1"              description:"Number of concurrent senders"`
	SampleRate float64 `          long:"sample-rate"  default:"1"              description:"Sample rate added to counters and timers, 1 omits it"`
	Lines      struct {
		Counter uint64 `short:"c" long:"counters" description:"Number of counter lines to send"`
		Gauge   uint64 `short:"g" long:"gauges"   description:"Number of gauge lines to send"`
		Set     uint64 `short:"s" long:"sets"     description:"Number of set lines to send"`
		Timer   uint64 `short:"t" long:"timers"   description:"Number of timer lines to send"`
	} `group:"Line counts"`
	Names struct {
		Counter int `long:"counter-names" default:"1" description:"Distinct counter names"`
		Gauge   int `long:"gauge-names"   default:"1" description:"Distinct gauge names"`
		Set     int `long:"set-names"     default:"1" description:"Distinct set names"`
		Timer   int `long:"timer-names"   default:"1" description:"Distinct timer names"`
	} `group:"Name cardinality"`
	Values struct {
		Counter int `long:"counter-max" default:"1"    description:"Largest counter increment"`
		Gauge   int `long:"gauge-max"   default:"100"  description:"Largest gauge value"`
		Set     int `long:"set-members" default:"10"   description:"Distinct members per set"`
		Timer   int `long:"timer-max"   default:"1000" description:"Largest timer value in milliseconds"`
	} `group:"Value range"`
}

func (o *loaderOptions) validate() error {
	if o.Lines.Counter+o.Lines.Gauge+o.Lines.Set+o.Lines.Timer == 0 {
		return fmt.Errorf("at least one of counters, gauges, sets or timers must be non-zero")
	}
	if o.Senders < 1 {
		return fmt.Errorf("senders must be positive")
	}
	if o.Rate <= 0 {
		return fmt.Errorf("rate must be positive")
	}
	if o.SampleRate <= 0 || o.SampleRate > 1 {
		return fmt.Errorf("sample-rate must be in (0, 1]")
	}
	if o.Names.Counter < 1 || o.Names.Gauge < 1 || o.Names.Set < 1 || o.Names.Timer < 1 {
		return fmt.Errorf("name cardinality must be positive")
	}
	if o.Values.Counter < 1 || o.Values.Gauge < 1 || o.Values.Set < 1 || o.Values.Timer < 1 {
		return fmt.Errorf("value ranges must be positive")
	}
	return nil
}

func parseArgs(args []string) loaderOptions {
	var opts loaderOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.LongDescription = "Sends randomly generated statsd lines to a daemon over UDP."

	positional, err := parser.ParseArgs(args)
	if err != nil {
		if !isHelp(err) {
			parser.WriteHelp(os.Stderr)
			_, _ = fmt.Fprintf(os.Stderr, "\n\nerror parsing command line: %v\n", err)
			os.Exit(1)
		}
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if len(positional) != 0 {
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\nno positional arguments allowed\n")
		os.Exit(1)
	}

	if err := opts.validate(); err != nil {
		parser.WriteHelp(os.Stderr)
		_, _ = fmt.Fprintf(os.Stderr, "\n\n%v\n", err)
		os.Exit(1)
	}
	return opts
}

// isHelp returns true if err is the error go-flags returns after printing help.
func isHelp(err error) bool {
	flagError, ok := err.(*flags.Error)
	return ok && flagError.Type == flags.ErrHelp
}
