// Package pipeline orchestrates a full conversion run: extraction,
// reconciliation, characterization, matrix assembly and export.
package pipeline

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/lcatools/ecomatrix/internal/audit"
	"github.com/lcatools/ecomatrix/internal/charact"
	"github.com/lcatools/ecomatrix/internal/config"
	"github.com/lcatools/ecomatrix/internal/ecospold"
	"github.com/lcatools/ecomatrix/internal/export"
	"github.com/lcatools/ecomatrix/internal/matrix"
	"github.com/lcatools/ecomatrix/internal/recon"
)

// lciTolerance is the relative disagreement accepted by the cumulative LCI
// sanity check. The published inventories are rounded, so exact equality is
// never attainable.
const lciTolerance = 1e-3

// Pipeline drives one conversion run over a shared reconciliation workspace.
type Pipeline struct {
	cfg *config.Config
	log *zap.SugaredLogger
	rep *audit.Reporter
	ctx *recon.Context

	method string
	table  *charact.Table
	obs    []*charact.Observation
	links  []*charact.Link
	labels *matrix.Labels
	old    []*recon.OldLabel
}

// New creates a pipeline. The audit reporter writes next to the run log.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Pipeline, error) {
	rep, err := audit.NewReporter(cfg.LogDir(), log)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg: cfg,
		log: log,
		rep: rep,
		ctx: recon.NewContext(),
	}, nil
}

// RunLeontief produces the normalized traceable system: labels, A, F, and C
// when a characterization method is configured.
func (p *Pipeline) RunLeontief() error {
	if err := p.prepare(); err != nil {
		return err
	}

	sys, err := matrix.Assemble(p.log, p.ctx, p.labels,
		p.cfg.PositiveWaste, p.cfg.NaN2Null)
	if err != nil {
		return err
	}
	if p.cfg.WithAbsoluteFlows {
		if err := sys.ScaleUp(p.log, p.ctx); err != nil {
			return err
		}
	}

	exp, err := export.NewExporter(p.log, p.cfg.OutDir, p.cfg.VersionName)
	if err != nil {
		return err
	}
	if err := exp.WriteLabels(p.labels); err != nil {
		return err
	}
	formats := p.formats()
	if err := exp.WriteSystem(sys, formats); err != nil {
		return err
	}
	if p.table != nil {
		c := matrix.BuildC(p.log, p.labels, p.links)
		if err := exp.WriteMatrix("C", c, formats); err != nil {
			return err
		}
	}

	if p.cfg.LCICheck && p.cfg.LCIDir != "" {
		e, err := p.buildCumulativeInventory()
		if err != nil {
			return err
		}
		if err := sys.CheckCumulativeLCI(p.log, p.rep, e, lciTolerance); err != nil {
			return err
		}
	}

	p.log.Infof("Leontief system written to %s", exp.Dir())
	return p.rep.WriteSummary()
}

// RunSUT produces the supply-and-use tables instead of the normalized system.
func (p *Pipeline) RunSUT() error {
	if err := p.prepare(); err != nil {
		return err
	}

	sut, err := matrix.BuildSUT(p.log, p.ctx, p.labels, p.cfg.MakeUntraceable)
	if err != nil {
		return err
	}

	exp, err := export.NewExporter(p.log, p.cfg.OutDir, p.cfg.VersionName)
	if err != nil {
		return err
	}
	if err := exp.WriteLabels(p.labels); err != nil {
		return err
	}
	formats := p.formats()
	if err := exp.WriteSUT(sut, formats); err != nil {
		return err
	}
	if p.table != nil {
		c := matrix.BuildC(p.log, p.labels, p.links)
		if err := exp.WriteMatrix("C", c, formats); err != nil {
			return err
		}
	}

	p.log.Infof("Supply and use tables written to %s", exp.Dir())
	return p.rep.WriteSummary()
}

// prepare runs the shared front of both pipelines: extraction, reference
// tables, vocabulary cleaning, flow repairs, substance resolution and the
// final labels.
func (p *Pipeline) prepare() error {
	if err := p.extract(); err != nil {
		return err
	}

	if err := p.ctx.LoadCASFixes(p.cfg.CASConflictsFile); err != nil {
		return err
	}
	if err := p.ctx.LoadSynonyms(p.cfg.SynonymsFile); err != nil {
		return err
	}

	if p.cfg.CharacterisationFile != "" {
		if err := p.readCharacterisation(); err != nil {
			return err
		}
	}

	inventory := p.ctx.STR
	recon.ApplyWaterIonFixes(p.log, inventory)
	p.ctx.CleanRecords(p.log, inventory)

	if _, err := p.ctx.FixFlowSources(p.log, p.rep); err != nil {
		return err
	}
	if _, err := p.ctx.FixMissingActivities(p.log, p.rep); err != nil {
		return err
	}

	if err := p.ctx.ResolveSubstances(p.log, p.rep); err != nil {
		return err
	}

	if p.cfg.OldLabelsFile != "" {
		old, err := recon.LoadOldLabels(p.cfg.OldLabelsFile)
		if err != nil {
			return err
		}
		if err := p.ctx.IntegrateOldLabels(p.log, p.rep, old); err != nil {
			return err
		}
		p.old = old
	}

	if p.cfg.CharacterisationFile != "" {
		table, err := charact.BuildTable(p.log, p.rep, p.method, p.ctx.CharRows)
		if err != nil {
			return err
		}
		if p.cfg.CustomFactorsFile != "" {
			overrides, err := recon.LoadCustomFactors(p.cfg.CustomFactorsFile)
			if err != nil {
				return err
			}
			table.ApplyCustomFactors(p.log, p.ctx, overrides)
		}
		p.table = table
	}

	if err := matrix.ComplementLabels(p.log, p.ctx, p.cfg.PROOrder,
		p.cfg.STROrder); err != nil {
		return err
	}
	p.obs = charact.BuildObservations(p.ctx, p.old)
	if err := matrix.SortObservations(p.obs, p.cfg.STROrder); err != nil {
		return err
	}
	p.labels = matrix.NewLabels(p.ctx, p.obs)

	if p.table != nil {
		links, err := charact.MatchObservations(p.log, p.rep, p.table, p.ctx,
			p.obs)
		if err != nil {
			return err
		}
		p.links = links
	}
	return nil
}

// extract fills the workspace from the cache when allowed, from the XML
// otherwise.
func (p *Pipeline) extract() error {
	if p.cfg.UseCache {
		ok, err := ecospold.LoadCache(p.log, p.ctx, p.cfg.CachePath())
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	masterDir := filepath.Join(p.cfg.SysDir, "MasterData")
	if err := ecospold.ExtractMasterData(p.log, p.ctx, masterDir); err != nil {
		return err
	}
	datasetDir := filepath.Join(p.cfg.SysDir, "datasets")
	if err := ecospold.ExtractDatasets(p.log, p.ctx, datasetDir); err != nil {
		return err
	}

	if p.cfg.SaveIntermediate {
		if err := ecospold.SaveCache(p.log, p.ctx, p.cfg.CachePath()); err != nil {
			return err
		}
	}
	return nil
}

// readCharacterisation reads the method workbook into the workspace's
// characterization vocabulary, applying the documented repairs around the
// shared cleaning pass.
func (p *Pipeline) readCharacterisation() error {
	method, rows, impacts, err := charact.ReadMethod(p.log,
		p.cfg.CharacterisationFile)
	if err != nil {
		return err
	}
	rows = charact.ApplyMethodFixes(p.log, rows)

	recs := make([]*recon.Record, len(rows))
	for i, row := range rows {
		recs[i] = &row.Record
	}
	recon.ApplyWaterIonFixes(p.log, recs)
	p.ctx.CleanRecords(p.log, recs)
	rows = charact.ApplyPostCleanFixes(p.log, rows)

	p.method = method
	p.ctx.CharRows = rows
	p.ctx.Impacts = impacts
	return nil
}

// buildCumulativeInventory extracts the official cumulative LCI datasets and
// pivots their elementary flows onto this run's label ordering. Processes
// absent from the LCI publication leave zero columns.
func (p *Pipeline) buildCumulativeInventory() (*mat.Dense, error) {
	lci := recon.NewContext()
	if err := ecospold.ExtractDatasets(p.log, lci, p.cfg.LCIDir); err != nil {
		return nil, fmt.Errorf("extract cumulative LCI: %w", err)
	}

	e := mat.NewDense(len(p.labels.Observations), len(p.labels.Processes), nil)
	missing := 0
	for _, f := range lci.ElemFlows {
		j, ok := p.labels.ProcessIndex(f.FileID)
		if !ok {
			missing++
			continue
		}
		i, ok := p.labels.StressorIndex(f.ExchangeID)
		if !ok {
			missing++
			continue
		}
		e.Set(i, j, e.At(i, j)+f.Amount)
	}
	if missing > 0 {
		p.log.Warnf("%d cumulative LCI flows had no place in the assembled"+
			" labels", missing)
	}
	return e, nil
}

func (p *Pipeline) formats() []string {
	var formats []string
	for _, f := range []string{export.FormatCSV, export.FormatSparse} {
		if p.cfg.WantsFormat(f) {
			formats = append(formats, f)
		}
	}
	return formats
}
