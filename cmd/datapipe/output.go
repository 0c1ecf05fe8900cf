package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"datapipe/internal/etl"
	"datapipe/internal/metadata"
)

var bold = color.New(color.Bold)

func colorStatus(status string) string {
	switch status {
	case etl.StatusSuccess:
		return color.GreenString(status)
	case etl.StatusError:
		return color.RedString(status)
	case etl.StatusRunning:
		return color.YellowString(status)
	case "":
		return color.HiBlackString("never run")
	}
	return status
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// printFields writes a field list as an aligned table.
func printFields(title string, fields *metadata.FieldList) {
	bold.Printf("%s:\n", title)
	if fields == nil || fields.Len() == 0 {
		fmt.Println("\t(no fields)")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tSTORAGE\tANALYTICAL\tORIGIN")
	for _, f := range fields.Slice() {
		origin := "-"
		if src := f.Origin.Field(); src != nil && src.Name != f.Name {
			origin = src.Name
		}
		fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\n", f.Name, f.StorageType, f.ResolvedAnalyticalType(), origin)
	}
	w.Flush()
}

func printResult(name string, result *etl.SyncResult) {
	bold.Printf("Pipeline %s: ", name)
	fmt.Println(colorStatus(result.Status))
	fmt.Printf("\trows read: %s, rows written: %s, duration: %s\n",
		humanize.Comma(int64(result.RowsRead)),
		humanize.Comma(int64(result.RowsWritten)),
		result.Duration.Round(time.Millisecond),
	)
	if result.Error != "" {
		fmt.Printf("\terror: %s\n", color.RedString(result.Error))
	}
}
