package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandialabs/canary/batch"
)

// parseBatchSpec parses the `-b spec=<...>` value into a batch.Spec. The
// grammar is a comma-separated list of `key:value` pairs, the same shape
// configOverrides uses one level up for `-c`:
//
//	duration:<go duration>   e.g. duration:30m
//	count:<int>|auto|max     an explicit number of batches, or "auto"/"max"
//	layout:flat|atomic
//	nodes:any|same
//
// duration and count are mutually exclusive, matching batch.Spec's own
// constraint.
func parseBatchSpec(value string) (batch.Spec, error) {
	var spec batch.Spec
	if value == "" {
		return spec, nil
	}
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			return spec, fmt.Errorf("batch spec field %q must be of the form <key>:<value>", field)
		}
		switch key {
		case "duration":
			d, err := time.ParseDuration(val)
			if err != nil {
				return spec, fmt.Errorf("batch spec duration %q: %w", val, err)
			}
			spec.Duration = d
		case "count":
			switch val {
			case "auto", "max":
				spec.CountMode = val
			default:
				n, err := strconv.Atoi(val)
				if err != nil {
					return spec, fmt.Errorf("batch spec count %q must be an integer, auto, or max", val)
				}
				spec.Count = n
			}
		case "layout":
			if val != "flat" && val != "atomic" {
				return spec, fmt.Errorf("batch spec layout must be flat or atomic, got %q", val)
			}
			spec.Layout = val
		case "nodes":
			if val != "any" && val != "same" {
				return spec, fmt.Errorf("batch spec nodes must be any or same, got %q", val)
			}
			spec.Nodes = val
		default:
			return spec, fmt.Errorf("unknown batch spec field %q", key)
		}
	}
	return spec, nil
}
