package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent samples for one chain.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; cannot show samples")
	}

	st, closeStores, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	since := time.Now().UTC().Add(-24 * time.Hour)
	samples, err := st.samples.RecentSamples(ctx, opts.Chain, since)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}
	if opts.Limit > 0 && len(samples) > opts.Limit {
		samples = samples[:opts.Limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChain\tPrice (USD)")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			sample.Timestamp.UTC().Format(time.RFC3339),
			sample.Symbol,
			sample.Price.StringFixed(2),
		)
	}

	writer.Flush()
	return nil
}
