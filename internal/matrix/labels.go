// Package matrix turns the reconciled dataset into labelled matrices: the
// normalized technology and stressor matrices of the traceable Leontief
// representation, the supply-and-use tables, the characterisation matrix and
// the cumulative-inventory sanity check.
package matrix

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/charact"
	"github.com/lcatools/ecomatrix/internal/recon"
)

// proKeys maps label-ordering names to process fields.
var proKeys = map[string]func(*recon.Process) string{
	"ISIC":         func(p *recon.Process) string { return p.ISIC },
	"activityName": func(p *recon.Process) string { return p.ActivityName },
	"activityId":   func(p *recon.Process) string { return p.ActivityID },
	"productName":  func(p *recon.Process) string { return p.ProductName },
	"productId":    func(p *recon.Process) string { return p.ProductID },
	"geography":    func(p *recon.Process) string { return p.Geography },
}

// strKeys maps label-ordering names to stressor fields.
var strKeys = map[string]func(*recon.Record) string{
	"comp":    func(r *recon.Record) string { return r.Comp },
	"subcomp": func(r *recon.Record) string { return r.Subcomp },
	"name":    func(r *recon.Record) string { return r.Name },
	"cas":     func(r *recon.Record) string { return r.CAS },
	"unit":    func(r *recon.Record) string { return r.Unit },
	"tag":     func(r *recon.Record) string { return r.Tag },
}

// ComplementLabels denormalizes the process label rows with the product and
// activity attributes the matrices are presented with, then orders the
// process and stressor labels by the configured sort keys. Must run before
// any matrix assembly; row and column positions are fixed here.
func ComplementLabels(log *zap.SugaredLogger, c *recon.Context, proOrder, strOrder []string) error {
	for _, p := range c.Processes {
		if prod, ok := c.Products[p.ProductID]; ok {
			if p.ProductName == "" {
				p.ProductName = prod.Name
			}
			if p.Unit == "" {
				p.Unit = prod.Unit
			}
		}
		if a, ok := c.Activities[p.ActivityID]; ok {
			p.ActivityType = a.Type
		}
	}

	pro, err := orderFuncs(proOrder, proKeys)
	if err != nil {
		return fmt.Errorf("process label order: %w", err)
	}
	str, err := orderFuncs(strOrder, strKeys)
	if err != nil {
		return fmt.Errorf("stressor label order: %w", err)
	}
	c.SortProcesses(pro...)
	c.SortSTR(str...)

	log.Infof("Labels complemented and ordered: %d processes, %d stressors",
		len(c.Processes), len(c.STR))
	return nil
}

func orderFuncs[T any](order []string, known map[string]func(T) string) ([]func(T) string, error) {
	var funcs []func(T) string
	for _, name := range order {
		f, ok := known[name]
		if !ok {
			keys := make([]string, 0, len(known))
			for k := range known {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("unknown sort key %q, want one of %v", name, keys)
		}
		funcs = append(funcs, f)
	}
	return funcs, nil
}

// Labels carries the fixed row and column orderings every matrix of a run
// shares.
type Labels struct {
	Processes    []*recon.Process
	Observations []*charact.Observation
	Impacts      []*recon.Impact

	proIndex map[string]int // process key -> column
	obsIndex map[string]int // observation id -> row
	dsIndex  map[string]int // raw inventory exchange id -> row
	impIndex map[string]int // impact id -> row
}

// NewLabels freezes the orderings. The observation slice must already be in
// final stressor-label order.
func NewLabels(c *recon.Context, obs []*charact.Observation) *Labels {
	l := &Labels{
		Processes:    c.Processes,
		Observations: obs,
		Impacts:      c.Impacts,
		proIndex:     map[string]int{},
		obsIndex:     map[string]int{},
		dsIndex:      map[string]int{},
		impIndex:     map[string]int{},
	}
	for i, p := range c.Processes {
		l.proIndex[p.Key] = i
	}
	for i, o := range obs {
		l.obsIndex[o.ID] = i
		if o.DSID != "" {
			l.dsIndex[o.DSID] = i
		}
	}
	for i, imp := range c.Impacts {
		l.impIndex[imp.ID] = i
	}
	return l
}

// ProcessIndex returns the column of a process key.
func (l *Labels) ProcessIndex(key string) (int, bool) {
	i, ok := l.proIndex[key]
	return i, ok
}

// StressorIndex returns the row of a raw inventory exchange id.
func (l *Labels) StressorIndex(dsid string) (int, bool) {
	i, ok := l.dsIndex[dsid]
	return i, ok
}

// SortObservations orders the final stressor label rows with the configured
// keys, inventory fields standing in for the record fields.
func SortObservations(obs []*charact.Observation, order []string) error {
	keys := map[string]func(*charact.Observation) string{
		"comp":    func(o *charact.Observation) string { return o.Comp },
		"subcomp": func(o *charact.Observation) string { return o.Subcomp },
		"name":    func(o *charact.Observation) string { return o.Name },
		"cas":     func(o *charact.Observation) string { return o.CAS },
		"unit":    func(o *charact.Observation) string { return o.Unit },
		"tag":     func(o *charact.Observation) string { return o.Tag },
	}
	funcs, err := orderFuncs(order, keys)
	if err != nil {
		return fmt.Errorf("stressor label order: %w", err)
	}
	sort.SliceStable(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		for _, k := range funcs {
			if ka, kb := k(a), k(b); ka != kb {
				return ka < kb
			}
		}
		return a.ID < b.ID
	})
	return nil
}
