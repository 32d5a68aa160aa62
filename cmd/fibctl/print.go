package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/danmuck/fibctl/internal/agent"
)

type printer struct {
	w    io.Writer
	json bool
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p printer) ports(ports []agent.PortStat) error {
	if p.json {
		return p.encode(ports)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tSTATE")
	for _, port := range ports {
		state := "down"
		if port.Connected {
			state = "up"
		}
		fmt.Fprintf(tw, "%d\t%s\n", port.ID, state)
	}
	return tw.Flush()
}

func (p printer) routes(routes []agent.Route) error {
	if p.json {
		return p.encode(routes)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tNEXT HOP")
	for _, r := range routes {
		to := r.To
		if to == "" {
			to = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", r.From, to)
	}
	return tw.Flush()
}

func (p printer) status(msg string) error {
	if p.json {
		return p.encode(map[string]string{"status": msg})
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

func (p printer) value(v any) error {
	return p.encode(v)
}
