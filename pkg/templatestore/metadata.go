package templatestore

import (
	"strconv"
	"time"

	"github.com/pipelineforge/pipelineforge/pkg/templatestore/vectorclient"
)

func successCountOf(doc vectorclient.Document) int {
	n, err := strconv.Atoi(doc.Metadata["success_count"])
	if err != nil {
		return 0
	}
	return n
}

func lastBuildDurationOf(doc vectorclient.Document) *time.Duration {
	raw, ok := doc.Metadata["last_build_duration_seconds"]
	if !ok {
		return nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	d := time.Duration(seconds) * time.Second
	return &d
}
