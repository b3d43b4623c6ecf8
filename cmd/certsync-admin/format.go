package main

import (
	"fmt"
	"time"

	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/status"
)

func repositoryFilter() repository.ListFilter {
	return repository.ListFilter{Status: statusFilter, Limit: limit}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printTime(label string, t *time.Time) {
	if t == nil {
		return
	}
	fmt.Printf("%-14s %s\n", label, t.Format(time.RFC3339))
}

func displayStatus(s status.Status) string {
	if s == "" {
		return "(unknown)"
	}
	return string(s)
}
