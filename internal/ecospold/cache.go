package ecospold

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/recon"
)

// Extraction of a full system model takes minutes; the cache stores the
// extracted tables in an embedded sqlite database so repeated runs on the
// same dataset skip the XML entirely. The cache is invalidated by deleting
// the file; it never outlives a schema change because the version is checked.

const cacheVersion = 1

var cacheSchema = []string{
	`CREATE TABLE meta (version INTEGER NOT NULL)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, unit TEXT NOT NULL)`,
	`CREATE TABLE activities (
		id TEXT PRIMARY KEY, nameId TEXT NOT NULL, type INTEGER NOT NULL,
		startDate TEXT NOT NULL, endDate TEXT NOT NULL)`,
	`CREATE TABLE processes (
		key TEXT PRIMARY KEY, activityId TEXT NOT NULL, productId TEXT NOT NULL,
		activityName TEXT NOT NULL, isic TEXT NOT NULL, category TEXT NOT NULL,
		geography TEXT NOT NULL, technologyLevel TEXT NOT NULL,
		scenario TEXT NOT NULL, comment TEXT NOT NULL)`,
	`CREATE TABLE inflows (
		fileId TEXT NOT NULL, sourceActivityId TEXT NOT NULL,
		productId TEXT NOT NULL, amount REAL NOT NULL)`,
	`CREATE TABLE outflows (
		fileId TEXT PRIMARY KEY, productId TEXT NOT NULL, amount REAL NOT NULL,
		productionVolume REAL NOT NULL, outputGroup INTEGER NOT NULL)`,
	`CREATE TABLE elemflows (
		fileId TEXT NOT NULL, exchangeId TEXT NOT NULL, amount REAL NOT NULL)`,
	`CREATE TABLE str (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, cas TEXT NOT NULL,
		comp TEXT NOT NULL, subcomp TEXT NOT NULL, unit TEXT NOT NULL)`,
}

// SaveCache writes the freshly extracted tables to path, replacing any
// previous cache.
func SaveCache(log *zap.SugaredLogger, c *recon.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace cache %s: %w", path, err)
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("cache transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range cacheSchema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create cache schema: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta (version) VALUES (?)`, cacheVersion); err != nil {
		return fmt.Errorf("write cache version: %w", err)
	}

	for _, p := range c.Products {
		if _, err := tx.Exec(
			`INSERT INTO products (id, name, unit) VALUES (?, ?, ?)`,
			p.ID, p.Name, p.Unit); err != nil {
			return fmt.Errorf("cache products: %w", err)
		}
	}
	for _, a := range c.Activities {
		if _, err := tx.Exec(
			`INSERT INTO activities (id, nameId, type, startDate, endDate)
			 VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.NameID, a.Type, a.StartDate, a.EndDate); err != nil {
			return fmt.Errorf("cache activities: %w", err)
		}
	}
	for _, p := range c.Processes {
		if _, err := tx.Exec(
			`INSERT INTO processes (key, activityId, productId, activityName,
			 isic, category, geography, technologyLevel, scenario, comment)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Key, p.ActivityID, p.ProductID, p.ActivityName, p.ISIC,
			p.Category, p.Geography, p.TechnologyLevel, p.Scenario,
			p.Comment); err != nil {
			return fmt.Errorf("cache processes: %w", err)
		}
	}
	for _, f := range c.InFlows {
		if _, err := tx.Exec(
			`INSERT INTO inflows (fileId, sourceActivityId, productId, amount)
			 VALUES (?, ?, ?, ?)`,
			f.FileID, f.SourceActivityID, f.ProductID, f.Amount); err != nil {
			return fmt.Errorf("cache inflows: %w", err)
		}
	}
	for _, f := range c.OutFlows {
		if _, err := tx.Exec(
			`INSERT INTO outflows (fileId, productId, amount, productionVolume,
			 outputGroup) VALUES (?, ?, ?, ?, ?)`,
			f.FileID, f.ProductID, f.Amount, f.ProductionVolume,
			f.OutputGroup); err != nil {
			return fmt.Errorf("cache outflows: %w", err)
		}
	}
	for _, f := range c.ElemFlows {
		if _, err := tx.Exec(
			`INSERT INTO elemflows (fileId, exchangeId, amount) VALUES (?, ?, ?)`,
			f.FileID, f.ExchangeID, f.Amount); err != nil {
			return fmt.Errorf("cache elemflows: %w", err)
		}
	}
	for _, r := range c.STR {
		if _, err := tx.Exec(
			`INSERT INTO str (id, name, cas, comp, subcomp, unit)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, r.CAS, r.Comp, r.Subcomp, r.Unit); err != nil {
			return fmt.Errorf("cache stressors: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache: %w", err)
	}
	log.Infof("Extraction cached in %s", path)
	return nil
}

// LoadCache fills the workspace from a previous extraction. Returns false
// without error when no usable cache exists.
func LoadCache(log *zap.SugaredLogger, c *recon.Context, path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return false, fmt.Errorf("open cache %s: %w", path, err)
	}
	defer db.Close()

	var version int
	if err := db.Get(&version, `SELECT version FROM meta`); err != nil || version != cacheVersion {
		log.Warnf("Cache %s unusable (version %d, want %d); re-extracting",
			path, version, cacheVersion)
		return false, nil
	}

	type productRow struct {
		ID, Name, Unit string
	}
	var products []productRow
	if err := db.Select(&products,
		`SELECT id AS "id", name AS "name", unit AS "unit"
		 FROM products ORDER BY id`); err != nil {
		return false, fmt.Errorf("load cached products: %w", err)
	}
	for _, p := range products {
		c.Products[p.ID] = &recon.Product{ID: p.ID, Name: p.Name, Unit: p.Unit}
	}

	type activityRow struct {
		ID        string `db:"id"`
		NameID    string `db:"nameId"`
		Type      int    `db:"type"`
		StartDate string `db:"startDate"`
		EndDate   string `db:"endDate"`
	}
	var activities []activityRow
	if err := db.Select(&activities,
		`SELECT id, nameId, type, startDate, endDate
		 FROM activities ORDER BY id`); err != nil {
		return false, fmt.Errorf("load cached activities: %w", err)
	}
	for _, a := range activities {
		c.Activities[a.ID] = &recon.Activity{
			ID: a.ID, NameID: a.NameID, Type: a.Type,
			StartDate: a.StartDate, EndDate: a.EndDate,
		}
	}

	type processRow struct {
		Key             string `db:"key"`
		ActivityID      string `db:"activityId"`
		ProductID       string `db:"productId"`
		ActivityName    string `db:"activityName"`
		ISIC            string `db:"isic"`
		Category        string `db:"category"`
		Geography       string `db:"geography"`
		TechnologyLevel string `db:"technologyLevel"`
		Scenario        string `db:"scenario"`
		Comment         string `db:"comment"`
	}
	var processes []processRow
	if err := db.Select(&processes,
		`SELECT key, activityId, productId, activityName, isic, category,
		 geography, technologyLevel, scenario, comment
		 FROM processes ORDER BY key`); err != nil {
		return false, fmt.Errorf("load cached processes: %w", err)
	}
	for _, p := range processes {
		c.AddProcess(&recon.Process{
			Key: p.Key, ActivityID: p.ActivityID, ProductID: p.ProductID,
			ActivityName: p.ActivityName, ISIC: p.ISIC, Category: p.Category,
			Geography: p.Geography, TechnologyLevel: p.TechnologyLevel,
			Scenario: p.Scenario, Comment: p.Comment,
		})
	}

	type inflowRow struct {
		FileID           string  `db:"fileId"`
		SourceActivityID string  `db:"sourceActivityId"`
		ProductID        string  `db:"productId"`
		Amount           float64 `db:"amount"`
	}
	var inflows []inflowRow
	if err := db.Select(&inflows,
		`SELECT fileId, sourceActivityId, productId, amount
		 FROM inflows ORDER BY rowid`); err != nil {
		return false, fmt.Errorf("load cached inflows: %w", err)
	}
	for _, f := range inflows {
		c.InFlows = append(c.InFlows, &recon.InFlow{
			FileID: f.FileID, SourceActivityID: f.SourceActivityID,
			ProductID: f.ProductID, Amount: f.Amount,
		})
	}

	type outflowRow struct {
		FileID           string  `db:"fileId"`
		ProductID        string  `db:"productId"`
		Amount           float64 `db:"amount"`
		ProductionVolume float64 `db:"productionVolume"`
		OutputGroup      int     `db:"outputGroup"`
	}
	var outflows []outflowRow
	if err := db.Select(&outflows,
		`SELECT fileId, productId, amount, productionVolume, outputGroup
		 FROM outflows ORDER BY fileId`); err != nil {
		return false, fmt.Errorf("load cached outflows: %w", err)
	}
	for _, f := range outflows {
		c.OutFlows[f.FileID] = &recon.OutFlow{
			FileID: f.FileID, ProductID: f.ProductID, Amount: f.Amount,
			ProductionVolume: f.ProductionVolume, OutputGroup: f.OutputGroup,
		}
	}

	type elemRow struct {
		FileID     string  `db:"fileId"`
		ExchangeID string  `db:"exchangeId"`
		Amount     float64 `db:"amount"`
	}
	var elems []elemRow
	if err := db.Select(&elems,
		`SELECT fileId, exchangeId, amount
		 FROM elemflows ORDER BY rowid`); err != nil {
		return false, fmt.Errorf("load cached elementary flows: %w", err)
	}
	for _, f := range elems {
		c.ElemFlows = append(c.ElemFlows, &recon.ElemFlow{
			FileID: f.FileID, ExchangeID: f.ExchangeID, Amount: f.Amount,
		})
	}

	type strRow struct {
		ID      string `db:"id"`
		Name    string `db:"name"`
		CAS     string `db:"cas"`
		Comp    string `db:"comp"`
		Subcomp string `db:"subcomp"`
		Unit    string `db:"unit"`
	}
	var strs []strRow
	if err := db.Select(&strs,
		`SELECT id, name, cas, comp, subcomp, unit
		 FROM str ORDER BY id`); err != nil {
		return false, fmt.Errorf("load cached stressors: %w", err)
	}
	for _, r := range strs {
		c.STR = append(c.STR, &recon.Record{
			ID: r.ID, Name: r.Name, CAS: r.CAS,
			Comp: r.Comp, Subcomp: r.Subcomp, Unit: r.Unit,
		})
	}

	log.Infof("Loaded extraction from cache %s: %d processes, %d product"+
		" inputs, %d elementary flows", path, len(c.Processes),
		len(c.InFlows), len(c.ElemFlows))
	return true, nil
}
