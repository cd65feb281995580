// Package ecospold extracts an ecoinvent ecospold2 dataset directory into the
// reconciliation workspace: master data, per-process flow data and the raw
// stressor vocabulary. Extraction is read-only with respect to the dataset;
// repairs happen downstream.
package ecospold

import (
	"crypto/sha1"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/recon"
)

// Master data file names inside the MasterData directory of a system model.
const (
	intermediateExchangesFile = "IntermediateExchanges.xml"
	elementaryExchangesFile   = "ElementaryExchanges.xml"
	activityIndexFile         = "ActivityIndex.xml"
)

type xmlIntermediateExchanges struct {
	Exchanges []struct {
		ID       string `xml:"id,attr"`
		Name     string `xml:"name"`
		UnitName string `xml:"unitName"`
	} `xml:"intermediateExchange"`
}

type xmlElementaryExchanges struct {
	Exchanges []struct {
		ID          string `xml:"id,attr"`
		CASNumber   string `xml:"casNumber,attr"`
		Name        string `xml:"name"`
		UnitName    string `xml:"unitName"`
		Compartment struct {
			Compartment    string `xml:"compartment"`
			Subcompartment string `xml:"subcompartment"`
		} `xml:"compartment"`
	} `xml:"elementaryExchange"`
}

type xmlActivityIndex struct {
	Entries []struct {
		ID                  string `xml:"id,attr"`
		ActivityNameID      string `xml:"activityNameId,attr"`
		SpecialActivityType int    `xml:"specialActivityType,attr"`
		StartDate           string `xml:"startDate,attr"`
		EndDate             string `xml:"endDate,attr"`
	} `xml:"activityIndexEntry"`
}

// ExtractMasterData reads the products, activities and the raw stressor
// vocabulary from the system model's master data directory. Every file read
// is identified in the log by its SHA-1, so a run can be traced back to the
// exact dataset version it saw.
func ExtractMasterData(log *zap.SugaredLogger, c *recon.Context, masterDir string) error {
	var products xmlIntermediateExchanges
	if err := readXML(log, filepath.Join(masterDir, intermediateExchangesFile), &products); err != nil {
		return err
	}
	for _, e := range products.Exchanges {
		if _, ok := c.Products[e.ID]; ok {
			continue
		}
		c.Products[e.ID] = &recon.Product{ID: e.ID, Name: e.Name, Unit: e.UnitName}
	}
	log.Infof("Read %d intermediate exchanges", len(c.Products))

	var index xmlActivityIndex
	if err := readXML(log, filepath.Join(masterDir, activityIndexFile), &index); err != nil {
		return err
	}
	for _, e := range index.Entries {
		if _, ok := c.Activities[e.ID]; ok {
			continue
		}
		c.Activities[e.ID] = &recon.Activity{
			ID:        e.ID,
			NameID:    e.ActivityNameID,
			Type:      e.SpecialActivityType,
			StartDate: e.StartDate,
			EndDate:   e.EndDate,
		}
	}
	log.Infof("Read %d activity index entries", len(c.Activities))

	var elem xmlElementaryExchanges
	if err := readXML(log, filepath.Join(masterDir, elementaryExchangesFile), &elem); err != nil {
		return err
	}
	for _, e := range elem.Exchanges {
		c.STR = append(c.STR, &recon.Record{
			ID:      e.ID,
			Name:    e.Name,
			CAS:     e.CASNumber,
			Comp:    e.Compartment.Compartment,
			Subcomp: e.Compartment.Subcompartment,
			Unit:    e.UnitName,
		})
	}
	log.Infof("Read %d elementary exchanges", len(c.STR))
	return nil
}

// readXML decodes one master data file, logging its SHA-1 first.
func readXML(log *zap.SugaredLogger, path string, v any) error {
	sum, err := fileSHA1(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	log.Infof("Reading %s (sha1: %s)", path, sum)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// fileSHA1 returns the hex SHA-1 of a file's contents.
func fileSHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
