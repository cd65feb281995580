package ecospold

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lcatools/ecomatrix/internal/recon"
)

type xmlDataset struct {
	Activity      *xmlActivityDataset `xml:"activityDataset"`
	ChildActivity *xmlActivityDataset `xml:"childActivityDataset"`
}

type xmlActivityDataset struct {
	Description struct {
		Activity struct {
			ID             string `xml:"id,attr"`
			ActivityNameID string `xml:"activityNameId,attr"`
			Type           int    `xml:"specialActivityType,attr"`
			Name           string `xml:"activityName"`
			Comment        struct {
				Text []string `xml:"text"`
			} `xml:"generalComment"`
		} `xml:"activity"`
		Classifications []struct {
			System string `xml:"classificationSystem"`
			Value  string `xml:"classificationValue"`
		} `xml:"classification"`
		Geography struct {
			Shortname string `xml:"shortname"`
		} `xml:"geography"`
		Technology struct {
			Level int `xml:"technologyLevel,attr"`
		} `xml:"technology"`
		Scenario struct {
			Name string `xml:"name"`
		} `xml:"macroEconomicScenario"`
	} `xml:"activityDescription"`
	FlowData struct {
		Intermediate []xmlIntermediateFlow `xml:"intermediateExchange"`
		Elementary   []xmlElementaryFlow   `xml:"elementaryExchange"`
	} `xml:"flowData"`
}

// Amounts are decoded as strings: a malformed amount skips one flow instead
// of failing the whole file.
type xmlIntermediateFlow struct {
	ExchangeID       string `xml:"intermediateExchangeId,attr"`
	ActivityLinkID   string `xml:"activityLinkId,attr"`
	Amount           string `xml:"amount,attr"`
	ProductionVolume string `xml:"productionVolumeAmount,attr"`
	InputGroup       *int   `xml:"inputGroup"`
	OutputGroup      *int   `xml:"outputGroup"`
}

type xmlElementaryFlow struct {
	ExchangeID string `xml:"elementaryExchangeId,attr"`
	Amount     string `xml:"amount,attr"`
}

// ExtractDatasets reads every .spold file of the dataset directory into the
// workspace. The file stem "<activityId>_<productId>" keys the process; the
// activity description fills the process label, the flow data the inflow,
// outflow and elementary flow tables.
//
// Flows of amount zero carry no information for the matrices and are skipped.
// A process has exactly one production outflow: the reference product, output
// group 0. Duplicate production rows for the same process are dropped with a
// warning, keeping the first.
func ExtractDatasets(log *zap.SugaredLogger, c *recon.Context, datasetDir string) error {
	entries, err := os.ReadDir(datasetDir)
	if err != nil {
		return fmt.Errorf("read dataset dir %s: %w", datasetDir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".spold") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("no .spold files in %s", datasetDir)
	}
	log.Infof("Reading %d datasets from %s", len(files), datasetDir)

	zeroFlows, badFlows, dupOutflows := 0, 0, 0
	for n, name := range files {
		key := strings.TrimSuffix(name, ".spold")
		activityID, productID, ok := strings.Cut(key, "_")
		if !ok {
			log.Warnf("Dataset file %s does not follow the"+
				" activityId_productId naming, skipped", name)
			continue
		}

		ds, err := readDataset(filepath.Join(datasetDir, name))
		if err != nil {
			return err
		}

		desc := ds.Description
		if desc.Activity.ID != "" && desc.Activity.ID != activityID {
			log.Warnf("Dataset %s: file stem names activity %s but the file"+
				" describes %s; the stem wins", name, activityID,
				desc.Activity.ID)
		}
		proc := &recon.Process{
			Key:             key,
			ActivityID:      activityID,
			ProductID:       productID,
			ActivityName:    desc.Activity.Name,
			Geography:       desc.Geography.Shortname,
			TechnologyLevel: technologyLevelName(desc.Technology.Level),
			Scenario:        desc.Scenario.Name,
			Comment:         strings.Join(desc.Activity.Comment.Text, " "),
		}
		for _, cl := range desc.Classifications {
			if strings.HasPrefix(cl.System, "ISIC") {
				proc.ISIC = cl.Value
			} else if proc.Category == "" {
				proc.Category = cl.Value
			}
		}
		c.AddProcess(proc)

		for _, f := range ds.FlowData.Intermediate {
			amount, ok := parseAmount(f.Amount)
			if !ok {
				badFlows++
				continue
			}
			if amount == 0 {
				zeroFlows++
				continue
			}
			switch {
			case f.OutputGroup != nil && *f.OutputGroup == 0:
				if _, ok := c.OutFlows[key]; ok {
					dupOutflows++
					continue
				}
				volume, _ := parseAmount(f.ProductionVolume)
				c.OutFlows[key] = &recon.OutFlow{
					FileID:           key,
					ProductID:        f.ExchangeID,
					Amount:           amount,
					ProductionVolume: volume,
					OutputGroup:      *f.OutputGroup,
				}
			case f.InputGroup != nil:
				c.InFlows = append(c.InFlows, &recon.InFlow{
					FileID:           key,
					SourceActivityID: f.ActivityLinkID,
					ProductID:        f.ExchangeID,
					Amount:           amount,
				})
			}
		}
		for _, f := range ds.FlowData.Elementary {
			amount, ok := parseAmount(f.Amount)
			if !ok {
				badFlows++
				continue
			}
			if amount == 0 {
				zeroFlows++
				continue
			}
			c.ElemFlows = append(c.ElemFlows, &recon.ElemFlow{
				FileID:     key,
				ExchangeID: f.ExchangeID,
				Amount:     amount,
			})
		}

		if _, ok := c.OutFlows[key]; !ok {
			log.Warnf("Dataset %s has no reference production outflow", name)
		}
		if (n+1)%1000 == 0 {
			log.Infof("... %d of %d datasets read", n+1, len(files))
		}
	}

	if zeroFlows > 0 {
		log.Infof("Skipped %d flows with zero amount", zeroFlows)
	}
	if badFlows > 0 {
		log.Warnf("Skipped %d flows with unparseable amounts", badFlows)
	}
	if dupOutflows > 0 {
		log.Warnf("Dropped %d duplicate production outflows, kept the first"+
			" of each", dupOutflows)
	}
	log.Infof("Extraction done: %d processes, %d product inputs, %d elementary"+
		" flows", len(c.Processes), len(c.InFlows), len(c.ElemFlows))
	return nil
}

// technologyLevels maps the numeric technologyLevel attribute to its
// ecospold2 name.
var technologyLevels = []string{
	"undefined", "new", "modern", "current", "old", "outdated",
}

func technologyLevelName(level int) string {
	if level < 0 || level >= len(technologyLevels) {
		return "undefined"
	}
	return technologyLevels[level]
}

// parseAmount parses a flow amount; an empty or malformed value reports false.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readDataset parses one .spold file, accepting both the plain and the child
// activity dataset roots.
func readDataset(path string) (*xmlActivityDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var ds xmlDataset
	if err := xml.NewDecoder(f).Decode(&ds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	switch {
	case ds.Activity != nil:
		return ds.Activity, nil
	case ds.ChildActivity != nil:
		return ds.ChildActivity, nil
	default:
		return nil, fmt.Errorf("%s: no activity dataset element", path)
	}
}
