package recon

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/audit"
)

// UnsourcedFlows returns the product-input flows that lack an explicit
// supplying activity.
func (c *Context) UnsourcedFlows(log *zap.SugaredLogger) []*InFlow {
	var unsourced []*InFlow
	for _, flow := range c.InFlows {
		if flow.SourceActivityID == "" {
			unsourced = append(unsourced, flow)
		}
	}
	if len(unsourced) > 0 {
		log.Warnf("Found %d untraceable flows", len(unsourced))
	} else {
		log.Info("OK. No untraceable flows.")
	}
	return unsourced
}

// SourceStats summarizes one resolver run.
type SourceStats struct {
	Resolved    int
	Unresolved  int
	MarketInput int
}

// FixFlowSources tries to find a source activity for every unsourced product
// input flow, writing the chosen sourceActivityId back into the flow table.
// Rule precedence is a total order, first match wins:
//
//  1. no producer in the dataset: unresolved, error logged
//  2. exactly one producer: use it, even if its geography is wrong
//  3. exactly one producer and one market: use the market, since the sole
//     producer clearly sells to the sole market
//  4. exactly one market in the right geography: prefer it
//  5. exactly one producer in the right geography: prefer it
//  6. otherwise the candidate set goes to an audit file for a manual decision
//
// Flows consumed by a market with untraceable inputs are unsupported and left
// unresolved.
func (c *Context) FixFlowSources(log *zap.SugaredLogger, rep *audit.Reporter) (SourceStats, error) {
	var stats SourceStats

	for _, flow := range c.UnsourcedFlows(log) {
		consumer := c.ProcessByKey(flow.FileID)
		if consumer == nil {
			log.Errorf("Unsourced flow of product %s refers to unknown process %s",
				flow.ProductID, flow.FileID)
			stats.Unresolved++
			continue
		}

		switch c.activityType(consumer.ActivityID) {
		case ActivityOrdinary:
			// resolved below
		case ActivityMarket:
			log.Errorf("A market with untraceable inputs: %s."+
				" This is not supported.", flow.FileID)
			stats.MarketInput++
			stats.Unresolved++
			continue
		default:
			log.Errorf("Activity %s is neither a normal one nor a market;"+
				" cannot source its flow of product %s",
				flow.FileID, flow.ProductID)
			stats.Unresolved++
			continue
		}

		var producers, producerMarkets, geoMarkets, geoProducers []*Process
		for _, p := range c.Processes {
			isProducer := p.ProductID == flow.ProductID
			isMarket := c.activityType(p.ActivityID) == ActivityMarket
			sameGeo := p.Geography == consumer.Geography
			if isProducer {
				producers = append(producers, p)
				if isMarket {
					producerMarkets = append(producerMarkets, p)
				}
				if sameGeo {
					geoProducers = append(geoProducers, p)
				}
			}
			if isMarket && sameGeo {
				geoMarkets = append(geoMarkets, p)
			}
		}

		var source *Process
		switch {
		case len(producers) == 0:
			log.Errorf("No producer found for product %s! Not good.", flow.ProductID)

		case len(producers) == 1:
			source = producers[0]
			if len(geoProducers) == 1 {
				log.Warnf("Exactly 1 producer (%s) for product %s, and its"+
					" geography is ok for this useflow",
					source.ActivityID, flow.ProductID)
			} else {
				log.Warnf("Exactly 1 producer (%s) for product %s, used in"+
					" spite of having wrong geography for %s: %s",
					source.ActivityID, flow.ProductID, flow.FileID,
					source.Geography)
			}

		case len(producers) == 2 && len(producerMarkets) == 1:
			source = producerMarkets[0]
			log.Warnf("Exactly 1 producer and 1 market worldwide, so product"+
				" %s is sourced from market %s",
				flow.ProductID, source.ActivityID)

		case len(geoMarkets) == 1:
			source = geoMarkets[0]
			log.Warnf("Multiple sources, but only one market (%s) with right"+
				" geography (%s) for product %s used by %s",
				source.ActivityID, consumer.Geography, flow.ProductID,
				flow.FileID)

		case len(geoProducers) == 1:
			source = geoProducers[0]
			log.Warnf("Multiple sources, but only one producer (%s) with"+
				" right geography (%s) for product %s used by %s",
				source.ActivityID, consumer.Geography, flow.ProductID,
				flow.FileID)

		default:
			name := fmt.Sprintf("potentialSources_%s_%s.csv",
				flow.ProductID, flow.FileID)
			path, err := rep.WriteTable(name, processHeader(),
				processRows(producers))
			if err != nil {
				return stats, err
			}
			log.Errorf("No unambiguous fix. %d potential sources for product"+
				" %s used by %s. Will need manual fix, see %s.",
				len(producers), flow.ProductID, flow.FileID, path)
		}

		if source != nil {
			flow.SourceActivityID = source.ActivityID
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
	}

	rep.Count("resolved_flow_sources", stats.Resolved)
	rep.Count("unresolved_flow_sources", stats.Unresolved)
	return stats, nil
}

// activityType looks up the type of an activity; unknown activities are
// treated as ordinary.
func (c *Context) activityType(activityID string) int {
	if a, ok := c.Activities[activityID]; ok {
		return a.Type
	}
	return ActivityOrdinary
}

func processHeader() []string {
	return []string{"key", "activityId", "productId", "activityName", "ISIC",
		"geography", "technologyLevel", "comment"}
}

func processRows(procs []*Process) [][]string {
	rows := make([][]string, 0, len(procs))
	for _, p := range procs {
		rows = append(rows, []string{p.Key, p.ActivityID, p.ProductID,
			p.ActivityName, p.ISIC, p.Geography, p.TechnologyLevel, p.Comment})
	}
	return rows
}
