package recon

import (
	"sort"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/audit"
)

// DummyComment marks a synthesized placeholder production.
const DummyComment = "DUMMY PRODUCTION"

// FixMissingActivities finds input flows traced to (activity, product) pairs
// that no process actually produces, and synthesizes a placeholder production
// for each: a new process row tagged DUMMY PRODUCTION and an outflow of
// amount 1.0. After repair every sourced input flow has a producing process,
// a precondition for matrix assembly. The full synthesized list is written to
// missingProducers.csv.
func (c *Context) FixMissingActivities(log *zap.SugaredLogger, rep *audit.Reporter) (int, error) {
	type pair struct{ activityID, productID string }

	produced := map[pair]bool{}
	for _, p := range c.Processes {
		produced[pair{p.ActivityID, p.ProductID}] = true
	}

	seen := map[pair]bool{}
	var missing []pair
	for _, flow := range c.InFlows {
		if flow.SourceActivityID == "" {
			// still unresolved, already surfaced by the source resolver
			continue
		}
		p := pair{flow.SourceActivityID, flow.ProductID}
		if !produced[p] && !seen[p] {
			seen[p] = true
			missing = append(missing, p)
		}
	}

	if len(missing) == 0 {
		log.Info("OK. Source activities seem in order. Each product traceable" +
			" to an activity that actually does produce or distribute this" +
			" product.")
		return 0, nil
	}

	sort.Slice(missing, func(i, j int) bool {
		if missing[i].activityID != missing[j].activityID {
			return missing[i].activityID < missing[j].activityID
		}
		return missing[i].productID < missing[j].productID
	})

	log.Errorf("Found %d product flows traceable to sources that do not"+
		" produce the right product. Productions will be added to the %d"+
		" process labels; see missingProducers.csv.",
		len(missing), len(c.Processes))

	var synthesized []*Process
	for _, m := range missing {
		key := m.activityID + "_" + m.productID
		proc := &Process{
			Key:        key,
			ActivityID: m.activityID,
			ProductID:  m.productID,
			Comment:    DummyComment,
		}
		// Copy activity metadata from any sibling process of the same
		// activity, where available.
		for _, p := range c.Processes {
			if p.ActivityID == m.activityID {
				proc.ActivityName = p.ActivityName
				proc.ISIC = p.ISIC
				proc.Geography = p.Geography
				break
			}
		}
		if prod, ok := c.Products[m.productID]; ok {
			proc.ProductName = prod.Name
			proc.Unit = prod.Unit
		}

		log.Warnf("New dummy activity: %s", key)
		c.AddProcess(proc)
		c.OutFlows[key] = &OutFlow{
			FileID:    key,
			ProductID: m.productID,
			Amount:    1.0,
		}
		synthesized = append(synthesized, proc)
	}

	if _, err := rep.WriteTable("missingProducers.csv", processHeader(),
		processRows(synthesized)); err != nil {
		return len(missing), err
	}

	log.Warnf("Added dummy productions; process labels now %d rows long.",
		len(c.Processes))
	return len(missing), nil
}
