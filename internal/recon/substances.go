package recon

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/audit"
)

// maxResolvePasses bounds the name-matching fixed point. Each pass strictly
// shrinks the unresolved work list or the loop stops; the cap turns a
// non-converging dataset into a diagnosable condition instead of a hang.
const maxResolvePasses = 8

// ResolveSubstances assigns exactly one substance identity to every raw
// stressor record across both vocabularies, so flows and factors can later be
// joined on identity rather than raw text.
//
// CAS-bearing records are integrated first: one substance per (cas, tag),
// every name seen for it registered in the name table. Records without CAS
// are then resolved by exact (name, tag) lookup and by the synonym table in
// increasing distrust order, iterating to a fixed point; whatever remains
// mints a new (name, tag) substance. The characterization vocabulary is
// processed before the inventory so its names act as match targets.
//
// Records with no name at all keep a zero SubstID; they surface in the
// uncharacterized audit rather than disappearing.
func (c *Context) ResolveSubstances(log *zap.SugaredLogger, rep *audit.Reporter) error {
	vocabs := c.vocabularies()

	for _, recs := range vocabs {
		c.integrateWithCAS(log, recs)
	}

	// Fixed point: alternate "update records from the name table" and
	// "insert newly observed names back into the name table".
	worklists := make([][]*Record, len(vocabs))
	for i, recs := range vocabs {
		worklists[i] = unresolved(recs)
	}
	for pass := 1; ; pass++ {
		changed := 0
		for i := range worklists {
			var n int
			worklists[i], n = c.updateFromNames(worklists[i])
			changed += n
			c.insertNames(vocabs[i])
		}
		if changed == 0 {
			log.Infof("Name matching converged after %d passes", pass)
			break
		}
		if pass == maxResolvePasses {
			log.Warnf("Name matching did not converge within %d passes;"+
				" %d records proceed to minting", maxResolvePasses,
				len(worklists[0])+lenAll(worklists[1:]))
			break
		}
	}

	// Mint new substances for whatever is left, then give the new names one
	// more chance to resolve records in the other vocabulary.
	for i := range worklists {
		c.mintRemaining(worklists[i])
		c.insertNames(vocabs[i])
	}
	for i := range worklists {
		worklists[i], _ = c.updateFromNames(worklists[i])
	}

	if err := c.reportNearMisses(log, rep); err != nil {
		return err
	}

	left := 0
	for _, recs := range vocabs {
		left += len(unresolved(recs))
	}
	rep.Count("unresolved_stressor_records", left)
	log.Infof("Substance resolution done: %d substances, %d names, %d records"+
		" unresolved", len(c.Substances), len(c.names), left)
	return nil
}

// vocabularies returns both label tables as record slices, characterization
// first.
func (c *Context) vocabularies() [][]*Record {
	char := make([]*Record, len(c.CharRows))
	for i, row := range c.CharRows {
		char[i] = &row.Record
	}
	return [][]*Record{char, c.STR}
}

func unresolved(recs []*Record) []*Record {
	var out []*Record
	for _, r := range recs {
		if r.SubstID == 0 {
			out = append(out, r)
		}
	}
	return out
}

func lenAll(lists [][]*Record) int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	return n
}

// integrateWithCAS creates one substance per distinct (cas, tag) pair,
// back-fills SubstID on every record sharing that pair, and registers all
// names seen.
func (c *Context) integrateWithCAS(log *zap.SugaredLogger, recs []*Record) {
	for _, r := range recs {
		if r.CAS == "" {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Name2
		}
		if name == "" {
			continue
		}
		key := tagKey{Key: r.CAS, Tag: r.Tag}
		if _, ok := c.byCASTag[key]; !ok {
			c.byCASTag[key] = c.newSubstance(name, r.CAS, r.Tag)
		}
	}
	matched := 0
	for _, r := range recs {
		if r.SubstID != 0 || r.CAS == "" {
			continue
		}
		if s, ok := c.byCASTag[tagKey{Key: r.CAS, Tag: r.Tag}]; ok {
			r.SubstID = s.ID
			matched++
		}
	}
	c.insertNames(recs)
	log.Infof("Matched %d of %d records by CAS and tag", matched, len(recs))
}

// insertNames registers every name of every resolved record into the
// Name↔Substance mapping, scoped by tag. First binding of a pair wins.
func (c *Context) insertNames(recs []*Record) {
	for _, r := range recs {
		if r.SubstID == 0 {
			continue
		}
		c.registerName(r.Name, r.Tag, r.SubstID)
		c.registerName(r.Name2, r.Tag, r.SubstID)
		c.registerName(r.Name3, r.Tag, r.SubstID)
	}
}

// updateFromNames resolves records against the name table: exact
// case-insensitive (name, tag) equality first, then the synonym table in
// increasing distrust order, both directions. Returns the still-unresolved
// remainder and the number resolved.
func (c *Context) updateFromNames(work []*Record) ([]*Record, int) {
	levels := c.synonymLevels()

	var remaining []*Record
	resolved := 0
	for _, r := range work {
		if r.SubstID != 0 {
			continue
		}
		// CAS-bearing records are the anchor set; name matching never
		// overrides a registry number.
		if r.CAS != "" {
			remaining = append(remaining, r)
			continue
		}

		if id, ok := c.lookupName(r.Name, r.Tag); ok {
			r.SubstID = id
		} else if id, ok := c.lookupName(r.Name2, r.Tag); ok {
			r.SubstID = id
		} else if id, ok := c.lookupSynonym(r, levels); ok {
			r.SubstID = id
		}

		if r.SubstID != 0 {
			resolved++
		} else {
			remaining = append(remaining, r)
		}
	}
	return remaining, resolved
}

// lookupSynonym tries the synonym table level by level, both directions.
func (c *Context) lookupSynonym(r *Record, levels []int) (SubstID, bool) {
	for _, level := range levels {
		for _, syn := range c.Synonyms {
			if syn.Level != level {
				continue
			}
			for _, dir := range [][2]string{
				{syn.Name, syn.OtherName},
				{syn.OtherName, syn.Name},
			} {
				if foldName(r.Name) == foldName(dir[0]) ||
					foldName(r.Name2) == foldName(dir[0]) {
					if id, ok := c.lookupName(dir[1], r.Tag); ok {
						return id, true
					}
				}
			}
		}
	}
	return 0, false
}

func (c *Context) synonymLevels() []int {
	seen := map[int]bool{}
	var levels []int
	for _, s := range c.Synonyms {
		if !seen[s.Level] {
			seen[s.Level] = true
			levels = append(levels, s.Level)
		}
	}
	sort.Ints(levels)
	return levels
}

// mintRemaining creates a new substance keyed by (name, tag) for every
// record that survived all matching passes with a name but no identity.
func (c *Context) mintRemaining(work []*Record) {
	for _, r := range work {
		if r.SubstID != 0 {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Name2
		}
		if name == "" {
			continue
		}
		key := tagKey{Key: foldName(name), Tag: r.Tag}
		s, ok := c.byNameTag[key]
		if !ok {
			s = c.newSubstance(name, r.CAS, r.Tag)
			c.byNameTag[key] = s
		}
		r.SubstID = s.ID
	}
}

// reportNearMisses logs likely-missed synonym pairs (a record whose primary
// and secondary names resolved to different substances) and likely-missed
// plural variants. Both are diagnostics for manual review, never
// auto-corrected: the intent behind such pairs is ambiguous.
func (c *Context) reportNearMisses(log *zap.SugaredLogger, rep *audit.Reporter) error {
	var synRows [][]string
	for _, row := range c.CharRows {
		id1, ok1 := c.lookupName(row.Name, row.Tag)
		id2, ok2 := c.lookupName(row.Name2, row.Tag)
		if ok1 && ok2 && id1 != id2 {
			synRows = append(synRows, []string{
				row.Name, fmt.Sprint(id1), row.Name2, fmt.Sprint(id2), row.Tag,
			})
		}
	}
	if len(synRows) > 0 {
		log.Warnf("Probably missed %d synonym pairs, see missedSynonyms.csv",
			len(synRows))
		if _, err := rep.WriteTable("missedSynonyms.csv",
			[]string{"name", "substId", "name2", "substId2", "tag"},
			dedupeRows(synRows)); err != nil {
			return err
		}
	}

	var pluralRows [][]string
	for _, k := range c.nameOrder {
		plural := tagKey{Key: k.Key + "s", Tag: k.Tag}
		if id, ok := c.names[plural]; ok && id != c.names[k] {
			pluralRows = append(pluralRows, []string{
				k.Key, fmt.Sprint(c.names[k]), plural.Key, fmt.Sprint(id), k.Tag,
			})
		}
	}
	if len(pluralRows) > 0 {
		log.Warnf("Maybe missed %d name matches because of plurals, see"+
			" missedPlurals.csv", len(pluralRows))
		if _, err := rep.WriteTable("missedPlurals.csv",
			[]string{"name", "substId", "plural", "substId2", "tag"},
			pluralRows); err != nil {
			return err
		}
	}
	return nil
}

func dedupeRows(rows [][]string) [][]string {
	seen := map[string]bool{}
	var out [][]string
	for _, row := range rows {
		key := fmt.Sprint(row)
		if !seen[key] {
			seen[key] = true
			out = append(out, row)
		}
	}
	return out
}
