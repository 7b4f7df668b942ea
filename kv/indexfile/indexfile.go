// Package indexfile reads composite index definitions in the index.yaml
// format:
//
//	indexes:
//	- kind: Greeting
//	  ancestor: yes
//	  properties:
//	  - name: author
//	  - name: date
//	    direction: desc
package indexfile

import (
	"io/ioutil"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap/errors"
)

type fileProperty struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
}

type fileIndex struct {
	Kind       string         `json:"kind"`
	Ancestor   bool           `json:"ancestor,omitempty"`
	Properties []fileProperty `json:"properties"`
}

type file struct {
	Indexes []fileIndex `json:"indexes"`
}

// Parse decodes an index.yaml document.
func Parse(data []byte) ([]*model.CompositeIndex, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Annotate(err, "parse index definitions")
	}
	indexes := make([]*model.CompositeIndex, 0, len(f.Indexes))
	for i, fi := range f.Indexes {
		if fi.Kind == "" {
			return nil, errors.Errorf("index %d: kind is required", i)
		}
		if len(fi.Properties) == 0 {
			return nil, errors.Errorf("index %d on %s: at least one property is required", i, fi.Kind)
		}
		index := &model.CompositeIndex{Kind: fi.Kind, Ancestor: fi.Ancestor}
		for _, p := range fi.Properties {
			if p.Name == "" {
				return nil, errors.Errorf("index %d on %s: property name is required", i, fi.Kind)
			}
			dir, err := parseDirection(p.Direction)
			if err != nil {
				return nil, errors.Annotatef(err, "index %d on %s", i, fi.Kind)
			}
			index.Properties = append(index.Properties, model.IndexProperty{Name: p.Name, Direction: dir})
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

func parseDirection(s string) (model.Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return model.Ascending, nil
	case "desc", "descending":
		return model.Descending, nil
	}
	return 0, errors.Errorf("unknown direction %q", s)
}

// Marshal renders indexes as an index.yaml document.
func Marshal(indexes []*model.CompositeIndex) ([]byte, error) {
	var f file
	for _, index := range indexes {
		fi := fileIndex{Kind: index.Kind, Ancestor: index.Ancestor}
		for _, p := range index.Properties {
			fp := fileProperty{Name: p.Name}
			if p.Direction == model.Descending {
				fp.Direction = "desc"
			}
			fi.Properties = append(fi.Properties, fp)
		}
		f.Indexes = append(f.Indexes, fi)
	}
	data, err := yaml.Marshal(&f)
	return data, errors.Trace(err)
}

// Loader supplies the indexes declared in one index.yaml file. The file
// is read again on every call so edits are picked up by the next store
// that loads it.
type Loader struct {
	Path string
}

func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// ListCompositeIndexes returns the indexes of the file for app.
func (l *Loader) ListCompositeIndexes(app string) ([]*model.CompositeIndex, error) {
	data, err := ioutil.ReadFile(l.Path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	indexes, err := Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", l.Path)
	}
	for _, index := range indexes {
		index.AppID = app
	}
	return indexes, nil
}
