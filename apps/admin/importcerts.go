package main

import (
	"context"
	"time"
)

func (cli *commandLine) importCerts() error {
	report, err := cli.migrator.Migrate(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Printf(
		"import done: examined=%d created=%d existing=%d not-passing=%d no-holder=%d no-course=%d errors=%d",
		report.Examined, report.Created, report.SkippedExisting, report.SkippedNotPassing,
		report.SkippedNoHolder, report.SkippedNoCredential, len(report.Errors),
	)
	for strategy, count := range report.HolderMatches {
		logger.Printf("holders matched by %s: %d", strategy, count)
	}
	for strategy, count := range report.CourseMatches {
		logger.Printf("courses matched by %s: %d", strategy, count)
	}
	return nil
}

func (cli *commandLine) fixDates() error {
	report, err := cli.migrator.FixDates(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Printf(
		"date fix done: examined=%d updated=%d unlinked=%d unchanged=%d errors=%d",
		report.Examined, report.Updated, report.SkippedNoScore, report.SkippedSame, len(report.Errors),
	)
	return nil
}
