package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
)

// backup exports the month's consumptions to CSV, once per (user, beverage)
// and once aggregated per user.
func (cli *commandLine) backup(year int, month time.Month) error {
	ctx := context.Background()
	from, to := core.MonthBounds(year, month)
	period := from.Format("2006-01")

	dir := cli.conf.BackupDir
	if dir == "" {
		dir = "backups"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating backup dir")
	}

	rows, err := cli.orderRepo.QueryReportRows(ctx, from, to)
	if err != nil {
		return errors.Wrap(err, "querying report rows")
	}
	detailed := [][]string{{"first_name", "last_name", "role", "beverage", "category", "quantity", "consumptions", "total_cost_cents"}}
	for _, r := range rows {
		detailed = append(detailed, []string{
			r.FirstName, r.LastName, r.RoleName, r.BeverageName, r.Category,
			strconv.Itoa(r.Quantity), strconv.Itoa(r.Count), strconv.Itoa(r.CostCents),
		})
	}
	detailedPath := filepath.Join(dir, "consumptions_"+period+"_detailed.csv")
	if err = writeCSV(detailedPath, detailed); err != nil {
		return err
	}

	summaries, err := cli.orderRepo.QueryUserSummaries(ctx, from, to)
	if err != nil {
		return errors.Wrap(err, "querying user summaries")
	}
	aggregated := [][]string{{"first_name", "last_name", "role", "quantity", "consumptions", "total_cost_cents"}}
	for _, s := range summaries {
		aggregated = append(aggregated, []string{
			s.FirstName, s.LastName, s.RoleName,
			strconv.Itoa(s.Quantity), strconv.Itoa(s.Count), strconv.Itoa(s.CostCents),
		})
	}
	summaryPath := filepath.Join(dir, "consumptions_"+period+"_summary.csv")
	if err = writeCSV(summaryPath, aggregated); err != nil {
		return err
	}

	fmt.Println("Wrote", detailedPath)
	fmt.Println("Wrote", summaryPath)
	return nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating "+path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err = w.WriteAll(records); err != nil {
		return errors.Wrap(err, "writing "+path)
	}
	return nil
}
