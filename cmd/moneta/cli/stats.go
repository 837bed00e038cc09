package cli

import (
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/moneta-ledger/moneta/internal/stats"
)

// PrintYear writes the monthly rows and the year summary as an aligned table
// with grouped numbers for tag.
func PrintYear(w io.Writer, tag language.Tag, months []stats.Stats, summary stats.Stats) error {
	p := message.NewPrinter(tag)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	if _, err := p.Fprintf(tw, "Period\tTurnover\tRevenue\tExpenses\tProfit\tROI %%\tSales\t\n"); err != nil {
		return err
	}
	row := func(label string, s stats.Stats) error {
		_, err := p.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t\n",
			label, s.Turnover, s.Revenue, s.Expenses, s.Profit, s.ROI, s.SalesCount)
		return err
	}
	for _, s := range months {
		if err := row(s.Month.String(), s); err != nil {
			return err
		}
	}
	if err := row("Total", summary); err != nil {
		return err
	}
	return tw.Flush()
}
