// Command fit-inspect decodes a FIT activity file and prints the canonical
// field map the ingest pipeline would build from it. Useful when a Garmin
// file ping produced a surprising activity.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/trackstack/server/pkg/domain/activity"
	"github.com/trackstack/server/pkg/domain/fitfile"
)

func main() {
	asActivity := flag.Bool("activity", false, "also print the built canonical activity")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: fit-inspect [-activity] <file.fit>\n")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	fields, err := fitfile.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decoding: %v\n", err)
		os.Exit(1)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%v\n", k, fields[k])
	}
	tw.Flush()

	if *asActivity {
		act := activity.Build("-", "-", fields, "garmin")
		fmt.Printf("\ntype=%s name=%q distance=%.0fm moving=%ds trainer=%v\n",
			act.Type, act.Name, act.DistanceMeters, act.MovingSeconds, act.Trainer)
	}
}
