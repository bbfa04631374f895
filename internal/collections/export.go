package collections

import (
	"encoding/json"
	"time"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
)

const exportVersion = 1

// ExportDoc is the portable dump of the collections tree and its
// saved requests.
type ExportDoc struct {
	Version     int                  `json:"version"`
	ExportedAt  time.Time            `json:"exportedAt"`
	Collections []Collection         `json:"collections"`
	Requests    []*restmodel.Request `json:"requests"`
}

func (s *Service) Export() (ExportDoc, error) {
	cols, err := s.All()
	if err != nil {
		return ExportDoc{}, err
	}
	doc := ExportDoc{
		Version:     exportVersion,
		ExportedAt:  time.Now().UTC(),
		Collections: cols,
	}
	for _, col := range cols {
		requests, err := s.Requests(col.ID)
		if err != nil {
			return ExportDoc{}, err
		}
		doc.Requests = append(doc.Requests, requests...)
	}
	return doc, nil
}

func (s *Service) ExportJSON() ([]byte, error) {
	doc, err := s.Export()
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "encode export")
	}
	return data, nil
}

// ImportJSON loads an exported dump. Every document gets a fresh id,
// with parent and collection links remapped. The whole document is
// validated and translated before anything is written, so a malformed
// dump imports nothing.
func (s *Service) ImportJSON(data []byte) error {
	var doc ExportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return errdef.Wrap(errdef.CodeParse, err, "decode import")
	}
	return s.Import(doc)
}

func (s *Service) Import(doc ExportDoc) error {
	known := make(map[string]Collection, len(doc.Collections))
	for _, col := range doc.Collections {
		if col.ID == "" {
			return errdef.New(errdef.CodeValidation, "import: collection without id")
		}
		known[col.ID] = col
	}
	for _, col := range doc.Collections {
		if col.ParentID != "" {
			if _, ok := known[col.ParentID]; !ok {
				return errdef.New(errdef.CodeValidation, "import: collection %q has unknown parent", col.Name)
			}
		}
	}
	for _, req := range doc.Requests {
		if req.CollectionID == "" {
			return errdef.New(errdef.CodeValidation, "import: request %q outside any collection", req.Name)
		}
		if _, ok := known[req.CollectionID]; !ok {
			return errdef.New(errdef.CodeValidation, "import: request %q references unknown collection", req.Name)
		}
	}

	// parents before children so the remap table is always populated
	idMap := make(map[string]string, len(doc.Collections))
	remaining := append([]Collection(nil), doc.Collections...)
	for len(remaining) > 0 {
		progressed := false
		var deferred []Collection
		for _, col := range remaining {
			parent := ""
			if col.ParentID != "" {
				mapped, ok := idMap[col.ParentID]
				if !ok {
					deferred = append(deferred, col)
					continue
				}
				parent = mapped
			}
			created, err := s.Create(col.Name, parent)
			if err != nil {
				return err
			}
			idMap[col.ID] = created.ID
			progressed = true
		}
		if !progressed {
			return errdef.New(errdef.CodeValidation, "import: collection hierarchy has a cycle")
		}
		remaining = deferred
	}

	for _, req := range doc.Requests {
		clone := req.Clone()
		clone.ID = ""
		if _, err := s.SaveRequest(idMap[req.CollectionID], clone); err != nil {
			return err
		}
	}
	return nil
}
