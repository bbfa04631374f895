package collections

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
	"github.com/unkn0wn-root/reqdeck/internal/restmodel"
	"github.com/unkn0wn-root/reqdeck/internal/store"
)

// Collection is a named folder of saved requests. ParentID forms the
// hierarchy; the empty string means top level.
type Collection struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	Order    int    `json:"order"`
}

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

func (s *Service) Create(name, parentID string) (Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Collection{}, errdef.New(errdef.CodeValidation, "collection name required")
	}
	if parentID != "" {
		if _, err := s.get(parentID); err != nil {
			return Collection{}, err
		}
	}
	siblings, err := s.children(parentID)
	if err != nil {
		return Collection{}, err
	}
	col := Collection{Name: name, ParentID: parentID, Order: len(siblings)}
	data, err := json.Marshal(col)
	if err != nil {
		return Collection{}, errdef.Wrap(errdef.CodeStorage, err, "encode collection")
	}
	obj, err := s.store.Add(store.BucketCollections, data, parentID)
	if err != nil {
		return Collection{}, err
	}
	col.ID = obj.ID
	return col, nil
}

func (s *Service) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errdef.New(errdef.CodeValidation, "collection name required")
	}
	col, err := s.get(id)
	if err != nil {
		return err
	}
	col.Name = name
	return s.save(col)
}

// Move reparents a collection. Moving under itself or any of its
// descendants would orphan the subtree, so that is rejected.
func (s *Service) Move(id, newParentID string) error {
	col, err := s.get(id)
	if err != nil {
		return err
	}
	if newParentID != "" {
		if newParentID == id {
			return errdef.New(errdef.CodeValidation, "cannot move collection into itself")
		}
		parent, err := s.get(newParentID)
		if err != nil {
			return err
		}
		for parent.ParentID != "" {
			if parent.ParentID == id {
				return errdef.New(errdef.CodeValidation, "cannot move collection into its own subtree")
			}
			parent, err = s.get(parent.ParentID)
			if err != nil {
				return err
			}
		}
	}
	siblings, err := s.children(newParentID)
	if err != nil {
		return err
	}
	col.ParentID = newParentID
	col.Order = len(siblings)
	return s.save(col)
}

// Delete removes the collection, its saved requests and recursively
// every descendant collection.
func (s *Service) Delete(id string) error {
	children, err := s.children(id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.Delete(child.ID); err != nil {
			return err
		}
	}
	requests, err := s.Requests(id)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if err := s.store.Delete(store.BucketRequests, req.ID); err != nil {
			return err
		}
	}
	return s.store.Delete(store.BucketCollections, id)
}

// Duplicate copies the collection and its saved requests under the
// same parent, with "(Copy)" appended to the name. Child collections
// are duplicated recursively.
func (s *Service) Duplicate(id string) (Collection, error) {
	src, err := s.get(id)
	if err != nil {
		return Collection{}, err
	}
	return s.duplicateInto(src, src.ParentID, src.Name+" (Copy)")
}

func (s *Service) duplicateInto(src Collection, parentID, name string) (Collection, error) {
	dup, err := s.Create(name, parentID)
	if err != nil {
		return Collection{}, err
	}
	requests, err := s.Requests(src.ID)
	if err != nil {
		return Collection{}, err
	}
	for _, req := range requests {
		clone := req.Clone()
		clone.ID = ""
		if _, err := s.SaveRequest(dup.ID, clone); err != nil {
			return Collection{}, err
		}
	}
	children, err := s.children(src.ID)
	if err != nil {
		return Collection{}, err
	}
	for _, child := range children {
		if _, err := s.duplicateInto(child, dup.ID, child.Name); err != nil {
			return Collection{}, err
		}
	}
	return dup, nil
}

func (s *Service) Get(id string) (Collection, error) {
	return s.get(id)
}

// All returns every collection sorted by parent, then order, then
// name.
func (s *Service) All() ([]Collection, error) {
	objects, err := s.store.All(store.BucketCollections)
	if err != nil {
		return nil, err
	}
	cols := make([]Collection, 0, len(objects))
	for _, obj := range objects {
		col, err := decodeCollection(obj)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].ParentID != cols[j].ParentID {
			return cols[i].ParentID < cols[j].ParentID
		}
		if cols[i].Order != cols[j].Order {
			return cols[i].Order < cols[j].Order
		}
		return cols[i].Name < cols[j].Name
	})
	return cols, nil
}

func (s *Service) children(parentID string) ([]Collection, error) {
	objects, err := s.store.AllByIndex(store.BucketCollections, parentID)
	if err != nil {
		return nil, err
	}
	cols := make([]Collection, 0, len(objects))
	for _, obj := range objects {
		col, err := decodeCollection(obj)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Order < cols[j].Order })
	return cols, nil
}

func (s *Service) get(id string) (Collection, error) {
	obj, err := s.store.Get(store.BucketCollections, id)
	if err != nil {
		return Collection{}, err
	}
	return decodeCollection(obj)
}

func (s *Service) save(col Collection) error {
	data, err := json.Marshal(col)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode collection")
	}
	return s.store.Update(store.BucketCollections, col.ID, data, col.ParentID)
}

func decodeCollection(obj store.Object) (Collection, error) {
	var col Collection
	if err := json.Unmarshal(obj.Data, &col); err != nil {
		return Collection{}, errdef.Wrap(errdef.CodeStorage, err, "decode collection %s", obj.ID)
	}
	col.ID = obj.ID
	return col, nil
}

// SaveRequest stores a request snapshot inside the collection. The
// snapshot is detached from any live tab state.
func (s *Service) SaveRequest(collectionID string, req *restmodel.Request) (*restmodel.Request, error) {
	col, err := s.get(collectionID)
	if err != nil {
		return nil, err
	}
	saved := req.Clone()
	saved.CollectionID = col.ID
	saved.CollectionName = col.Name
	if strings.TrimSpace(saved.Name) == "" {
		saved.Name = "Untitled Request"
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "encode request")
	}
	obj, err := s.store.Add(store.BucketRequests, data, col.ID)
	if err != nil {
		return nil, err
	}
	saved.ID = obj.ID
	return saved, nil
}

// UpdateRequest rewrites a saved request in place.
func (s *Service) UpdateRequest(req *restmodel.Request) error {
	if req.ID == "" {
		return errdef.New(errdef.CodeValidation, "request has no saved id")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode request")
	}
	return s.store.Update(store.BucketRequests, req.ID, data, req.CollectionID)
}

func (s *Service) DeleteRequest(id string) error {
	return s.store.Delete(store.BucketRequests, id)
}

// GetRequest loads one saved request by id.
func (s *Service) GetRequest(id string) (*restmodel.Request, error) {
	obj, err := s.store.Get(store.BucketRequests, id)
	if err != nil {
		return nil, err
	}
	var req restmodel.Request
	if err := json.Unmarshal(obj.Data, &req); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "decode request %s", obj.ID)
	}
	req.ID = obj.ID
	return &req, nil
}

// Requests lists the saved requests of one collection.
func (s *Service) Requests(collectionID string) ([]*restmodel.Request, error) {
	objects, err := s.store.AllByIndex(store.BucketRequests, collectionID)
	if err != nil {
		return nil, err
	}
	out := make([]*restmodel.Request, 0, len(objects))
	for _, obj := range objects {
		var req restmodel.Request
		if err := json.Unmarshal(obj.Data, &req); err != nil {
			return nil, errdef.Wrap(errdef.CodeStorage, err, "decode request %s", obj.ID)
		}
		req.ID = obj.ID
		out = append(out, &req)
	}
	return out, nil
}
