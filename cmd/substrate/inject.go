package main

import (
	"fmt"
	"strconv"
	"strings"
)

// injection is a stimulus given on the command line as id=energy, or
// id=energy@every to repeat it every N ticks during a simulation.
type injection struct {
	ID     string
	Energy float64
	Every  uint64
}

func parseInjections(specs []string) ([]injection, error) {
	out := make([]injection, 0, len(specs))
	for _, spec := range specs {
		inj, err := parseInjection(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, inj)
	}
	return out, nil
}

func parseInjection(spec string) (injection, error) {
	id, rest, ok := strings.Cut(spec, "=")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return injection{}, fmt.Errorf("invalid injection %q: want id=energy", spec)
	}
	energyStr, everyStr, repeat := strings.Cut(rest, "@")
	energy, err := strconv.ParseFloat(strings.TrimSpace(energyStr), 64)
	if err != nil {
		return injection{}, fmt.Errorf("invalid injection %q: energy: %w", spec, err)
	}
	inj := injection{ID: id, Energy: energy}
	if repeat {
		every, err := strconv.ParseUint(strings.TrimSpace(everyStr), 10, 64)
		if err != nil || every == 0 {
			return injection{}, fmt.Errorf("invalid injection %q: every must be a positive integer", spec)
		}
		inj.Every = every
	}
	return inj, nil
}

// due reports whether the injection fires on tick. One-shot injections fire
// on the first tick only.
func (i injection) due(tick uint64) bool {
	if i.Every == 0 {
		return tick == 1
	}
	return tick%i.Every == 0
}
