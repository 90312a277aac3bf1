package main

import (
	"context"
	"time"
)

func (cli *commandLine) checkExpiry() error {
	report, err := cli.certSvc.RunPass(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Printf(
		"lifecycle pass done: examined=%d notified=%d expired=%d backfilled=%d errors=%d",
		report.Examined, report.Notified, report.Expired, report.Backfilled, len(report.Errors),
	)
	for _, e := range report.Errors {
		logger.Printf("certificate %s: %s", e.CertificateID, e.Reason)
	}
	return nil
}
