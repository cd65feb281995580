package recon

import (
	"strings"

	"go.uber.org/zap"
)

// foldName is the canonical form used for all name comparisons: matching is
// case-insensitive-exact, never fuzzy.
func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// likeMatch implements the SQL LIKE subset used by the reference tables: a
// case-insensitive comparison where '%' matches any run of characters.
func likeMatch(pattern, value string) bool {
	p := foldName(pattern)
	v := foldName(value)
	if !strings.Contains(p, "%") {
		return p == v
	}
	parts := strings.Split(p, "%")
	if !strings.HasPrefix(v, parts[0]) {
		return false
	}
	v = v[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		i := strings.Index(v, part)
		if i < 0 {
			return false
		}
		v = v[i+len(part):]
	}
	return strings.HasSuffix(v, parts[len(parts)-1])
}

// unitAliases folds unit spellings into their canonical form.
var unitAliases = map[string]string{
	"Nm3":     "m3",
	"m2*year": "m2a",
	"m3*year": "m3a",
}

// subcompAliases folds subcompartment spellings after lower-casing.
var subcompAliases = map[string]string{
	"":              "unspecified",
	"(unspecified)": "unspecified",
	"low. pop.":     "low population density",
	"high. pop.":    "high population density",
}

// compAliases folds compartment synonyms after lower-casing.
var compAliases = map[string]string{
	"raw":              "resource",
	"natural resource": "resource",
}

// suffixTags derive a distinguishing tag from a name suffix, checked in this
// order.
var suffixTags = []string{"total", "organic bound", "fossil", "non-fossil", "as N"}

// nameColumns returns the non-empty name fields of a record, for rules that
// apply to every name variant.
func nameColumns(r *Record) []*string {
	return []*string{&r.Name, &r.Name2, &r.Name3}
}

// CleanRecords normalizes one label vocabulary in place. It must run
// identically over the inventory and the characterization tables before any
// cross-matching, otherwise identity resolution silently fails to align them.
func (c *Context) CleanRecords(log *zap.SugaredLogger, recs []*Record) {
	for _, r := range recs {
		r.Unit = strings.TrimSpace(r.Unit)
		if alias, ok := unitAliases[r.Unit]; ok {
			r.Unit = alias
		}

		r.Comp = foldName(r.Comp)
		if alias, ok := compAliases[r.Comp]; ok {
			r.Comp = alias
		}
		r.Subcomp = foldName(r.Subcomp)
		if alias, ok := subcompAliases[r.Subcomp]; ok {
			r.Subcomp = alias
		}

		r.CAS = strings.TrimLeft(strings.TrimSpace(r.CAS), "0")

		for _, name := range nameColumns(r) {
			*name = strings.TrimSpace(*name)
			*name = strings.ReplaceAll(*name, ", biogenic", ", non-fossil")
			*name = strings.TrimSuffix(*name, ", in ground")
			*name = strings.TrimSuffix(*name, ", unspecified")
			*name = strings.TrimSuffix(*name, "/m3")
		}

		r.Tag = deriveTag(r)

		// Water's many forms are disambiguated by name, never by registry
		// number: a single CAS is not representative.
		if strings.Contains(foldName(r.Name), "water") ||
			strings.Contains(foldName(r.Name2), "water") {
			r.CAS = ""
		}
	}

	c.applyCASFixes(log, recs)
}

// deriveTag inspects name suffixes and content to derive the distinguishing
// tag, e.g. "fossil" vs "non-fossil" CO2.
func deriveTag(r *Record) string {
	tag := r.Tag
	for _, t := range suffixTags {
		suffix := ", " + foldName(t)
		if strings.HasSuffix(foldName(r.Name), suffix) ||
			strings.HasSuffix(foldName(r.Name2), suffix) {
			tag = t
		}
	}
	if strings.HasSuffix(foldName(r.Name), " from soil or biomass stock") ||
		strings.HasSuffix(foldName(r.Name2), " from soil or biomass stock") {
		tag = "fossil"
	}
	if strings.HasSuffix(foldName(r.Name), " compounds") ||
		strings.HasSuffix(foldName(r.Name2), " compounds") {
		tag = "mix"
	}
	if foldName(r.Unit) == "kbq" &&
		(strings.Contains(foldName(r.Name), "alpha") ||
			strings.Contains(foldName(r.Name2), "alpha")) {
		tag = "alpha radiation"
	}
	return tag
}

// applyCASFixes applies the documented CAS-number corrections: rows may be
// conditioned on a name pattern, on the bad CAS alone, or on the name alone.
func (c *Context) applyCASFixes(log *zap.SugaredLogger, recs []*Record) {
	for _, fix := range c.CASFixes {
		fixed := 0
		for _, r := range recs {
			switch {
			case fix.Name != "" && fix.BadCAS != "":
				if r.CAS == fix.BadCAS &&
					(likeMatch(fix.Name, r.Name) || likeMatch(fix.Name, r.Name2)) {
					r.CAS = fix.CAS
					fixed++
				}
			case fix.Name == "":
				if fix.BadCAS != "" && r.CAS == fix.BadCAS {
					r.CAS = fix.CAS
					fixed++
				}
			default: // name pattern only
				if likeMatch(fix.Name, r.Name) || likeMatch(fix.Name, r.Name2) {
					r.CAS = fix.CAS
					fixed++
				}
			}
		}
		if fixed > 0 {
			log.Infof("Substituted CAS %s by %s on %d rows (%s): %s",
				fix.BadCAS, fix.CAS, fixed, fix.Name, fix.Comment)
		}
	}
}

// ApplyWaterIonFixes forces neutral metal names in the water compartment onto
// their ionic identities, for compatibility between the inventory and the
// characterization vocabularies.
func ApplyWaterIonFixes(log *zap.SugaredLogger, recs []*Record) {
	fixed := 0
	for _, r := range recs {
		if foldName(r.Comp) != "water" {
			continue
		}
		if foldName(r.Name) == "copper" || foldName(r.Name2) == "copper" {
			r.Name = "Copper, ion"
			r.Name2 = "Copper, ion"
			fixed++
		}
	}
	if fixed > 0 {
		log.Infof("Forced %d copper emissions to water to be ionic (Cu(2+))"+
			" instead of neutral", fixed)
	}
}

// CleanImpactID strips parentheses from impact identifiers the same way on
// the method metadata and the factor rows.
func CleanImpactID(id string) string {
	id = strings.ReplaceAll(id, "(", "_")
	id = strings.ReplaceAll(id, ")", "")
	return strings.TrimSpace(id)
}
