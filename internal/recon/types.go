// Package recon holds the reconciliation workspace and the engines that
// repair and resolve an extracted ecospold dataset: source assignment for
// untraceable product flows, synthesis of missing productions, label
// normalization and substance identity resolution across the inventory and
// characterization vocabularies.
package recon

import "sort"

// Activity types from the ecospold specialActivityType field.
const (
	ActivityOrdinary = 0
	ActivityMarket   = 1
)

// Product is an intermediate-exchange product. Immutable once extracted.
type Product struct {
	ID   string
	Name string
	Unit string
}

// Activity is a transforming or market activity. Immutable once extracted.
type Activity struct {
	ID        string
	NameID    string
	Type      int
	StartDate string
	EndDate   string
}

// Process is one production: an (activity, product) pair, keyed by the
// dataset file stem "<activityId>_<productId>". Rows may be inserted by the
// missing-activity repairer; synthesized rows carry Comment "DUMMY PRODUCTION".
type Process struct {
	Key             string
	ActivityID      string
	ProductID       string
	ActivityName    string
	ISIC            string
	Category        string
	Geography       string
	TechnologyLevel string
	Scenario        string
	Comment         string

	// Filled by ComplementLabels from the product and activity tables.
	ProductName  string
	Unit         string
	ActivityType int
}

// InFlow is a product-consumption record. SourceActivityID is "" until the
// flow is traced to a supplier.
type InFlow struct {
	FileID           string
	SourceActivityID string
	ProductID        string
	Amount           float64
}

// OutFlow is the product-production record of a process. Exactly one per
// process key survives extraction.
type OutFlow struct {
	FileID           string
	ProductID        string
	Amount           float64
	ProductionVolume float64
	OutputGroup      int
}

// ElemFlow is a raw elementary exchange of a process.
type ElemFlow struct {
	FileID     string
	ExchangeID string
	Amount     float64
}

// SubstID is the resolution-engine-assigned surrogate key for a substance.
// Zero means unresolved.
type SubstID int64

// Record is one raw stressor label row from either vocabulary. Empty strings
// stand for absent values in Name*, CAS and Tag.
type Record struct {
	ID      string
	Name    string
	Name2   string
	Name3   string
	CAS     string
	Comp    string
	Subcomp string
	Unit    string
	Tag     string
	SubstID SubstID

	// LegacyID is a prior-run identifier re-used for backward compatibility;
	// zero when none was matched.
	LegacyID int64
}

// CharRow is one characterization-method row: a stressor label plus one
// impact factor.
type CharRow struct {
	Record
	ImpactID    string
	FactorValue float64
}

// Impact is one impact category of the characterization method.
type Impact struct {
	ID          string
	Perspective string
	Unit        string
}

// Substance is the canonical identity that flows and factors are keyed on.
type Substance struct {
	ID   SubstID
	Name string
	CAS  string
	Tag  string
}

// Synonym asserts two names denote one substance, ranked by ascending
// distrust.
type Synonym struct {
	Name      string
	OtherName string
	Level     int
}

// CASFix is one row of the CAS-conflict correction table. Empty BadCAS or
// NamePattern stand for "any".
type CASFix struct {
	BadCAS  string
	CAS     string
	Name    string
	Comment string
}

// tagKey scopes a cas or name lookup by tag.
type tagKey struct {
	Key string
	Tag string
}

// Context is the shared mutable reconciliation workspace for one run. All
// stage functions take it explicitly; nothing ambient.
type Context struct {
	Products   map[string]*Product
	Activities map[string]*Activity

	Processes []*Process
	procByKey map[string]*Process

	InFlows   []*InFlow
	OutFlows  map[string]*OutFlow
	ElemFlows []*ElemFlow

	// STR is the inventory stressor vocabulary; CharRows the characterization
	// vocabulary. Both are annotated in place by the substance resolver.
	STR      []*Record
	CharRows []*CharRow
	Impacts  []*Impact

	Substances []*Substance
	byCASTag   map[tagKey]*Substance
	byNameTag  map[tagKey]*Substance

	// names is the Name↔Substance mapping: first binding of a (name, tag)
	// pair wins, later conflicting bindings are ignored.
	names     map[tagKey]SubstID
	nameOrder []tagKey

	Synonyms []Synonym
	CASFixes []CASFix
}

// NewContext returns an empty workspace.
func NewContext() *Context {
	return &Context{
		Products:   map[string]*Product{},
		Activities: map[string]*Activity{},
		procByKey:  map[string]*Process{},
		OutFlows:   map[string]*OutFlow{},
		byCASTag:   map[tagKey]*Substance{},
		byNameTag:  map[tagKey]*Substance{},
		names:      map[tagKey]SubstID{},
	}
}

// AddProcess registers a process row, replacing any stale index entry.
func (c *Context) AddProcess(p *Process) {
	c.Processes = append(c.Processes, p)
	c.procByKey[p.Key] = p
}

// ProcessByKey returns the process with the given file key, or nil.
func (c *Context) ProcessByKey(key string) *Process {
	return c.procByKey[key]
}

// SortProcesses orders the process table with the given key extractors,
// falling back to the process key so ordering is total and deterministic.
func (c *Context) SortProcesses(keys ...func(*Process) string) {
	sort.SliceStable(c.Processes, func(i, j int) bool {
		a, b := c.Processes[i], c.Processes[j]
		for _, k := range keys {
			if ka, kb := k(a), k(b); ka != kb {
				return ka < kb
			}
		}
		return a.Key < b.Key
	})
}

// SortSTR orders the stressor table with the given key extractors.
func (c *Context) SortSTR(keys ...func(*Record) string) {
	sort.SliceStable(c.STR, func(i, j int) bool {
		a, b := c.STR[i], c.STR[j]
		for _, k := range keys {
			if ka, kb := k(a), k(b); ka != kb {
				return ka < kb
			}
		}
		return a.ID < b.ID
	})
}

// newSubstance mints a substance and indexes it under its identity key.
func (c *Context) newSubstance(name, cas, tag string) *Substance {
	s := &Substance{
		ID:   SubstID(len(c.Substances) + 1),
		Name: name,
		CAS:  cas,
		Tag:  tag,
	}
	c.Substances = append(c.Substances, s)
	return s
}

// SubstanceByID returns the substance for a resolved id, or nil.
func (c *Context) SubstanceByID(id SubstID) *Substance {
	if id <= 0 || int(id) > len(c.Substances) {
		return nil
	}
	return c.Substances[id-1]
}

// registerName binds a (name, tag) pair to a substance unless the pair is
// already bound. Names are compared case-insensitively.
func (c *Context) registerName(name, tag string, id SubstID) {
	if name == "" {
		return
	}
	k := tagKey{Key: foldName(name), Tag: tag}
	if _, ok := c.names[k]; ok {
		return
	}
	c.names[k] = id
	c.nameOrder = append(c.nameOrder, k)
}

// lookupName resolves a (name, tag) pair against the name table.
func (c *Context) lookupName(name, tag string) (SubstID, bool) {
	if name == "" {
		return 0, false
	}
	id, ok := c.names[tagKey{Key: foldName(name), Tag: tag}]
	return id, ok
}

// SubstancesByNamePattern returns, in registration order, the distinct
// substances whose registered names match a LIKE pattern, across tags.
func (c *Context) SubstancesByNamePattern(pattern string) []SubstID {
	seen := map[SubstID]bool{}
	var ids []SubstID
	for _, k := range c.nameOrder {
		if !likeMatch(pattern, k.Key) {
			continue
		}
		id := c.names[k]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
