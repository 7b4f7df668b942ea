package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pingcap-incubator/tinyds/kv/util/codec"
)

// PathElement is one (kind, id-or-name) step of a key path.
type PathElement struct {
	Kind string
	ID   int64
	Name string
}

// HasIDOrName reports whether the element is complete.
func (e PathElement) HasIDOrName() bool {
	return e.ID != 0 || e.Name != ""
}

func (e PathElement) compare(o PathElement) int {
	if c := strings.Compare(e.Kind, o.Kind); c != 0 {
		return c
	}
	// Numeric ids sort before names.
	switch {
	case e.Name == "" && o.Name == "":
		return compareInt64(e.ID, o.ID)
	case e.Name == "":
		return -1
	case o.Name == "":
		return 1
	}
	return strings.Compare(e.Name, o.Name)
}

func (e PathElement) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s:%q", e.Kind, e.Name)
	}
	return e.Kind + ":" + strconv.FormatInt(e.ID, 10)
}

// Key addresses one entity. The path is ordered from the root ancestor to
// the entity itself.
type Key struct {
	AppID     string
	Namespace string
	Path      []PathElement
}

// NewKey builds a key from alternating kind and id-or-name pairs. The
// id-or-name must be an int, int64 or string; a zero int leaves the element
// incomplete.
func NewKey(app, namespace string, pairs ...interface{}) *Key {
	if len(pairs)%2 != 0 {
		panic("NewKey: odd number of path arguments")
	}
	k := &Key{AppID: app, Namespace: namespace}
	for i := 0; i < len(pairs); i += 2 {
		elem := PathElement{Kind: pairs[i].(string)}
		switch v := pairs[i+1].(type) {
		case int:
			elem.ID = int64(v)
		case int64:
			elem.ID = v
		case string:
			elem.Name = v
		default:
			panic(fmt.Sprintf("NewKey: unsupported id type %T", v))
		}
		k.Path = append(k.Path, elem)
	}
	return k
}

// Kind is the kind of the last path element.
func (k *Key) Kind() string {
	if len(k.Path) == 0 {
		return ""
	}
	return k.Path[len(k.Path)-1].Kind
}

// Last returns the entity's own path element.
func (k *Key) Last() PathElement {
	if len(k.Path) == 0 {
		return PathElement{}
	}
	return k.Path[len(k.Path)-1]
}

// Root returns the first path element, which names the entity group.
func (k *Key) Root() PathElement {
	if len(k.Path) == 0 {
		return PathElement{}
	}
	return k.Path[0]
}

// Parent returns the key of the direct ancestor, or nil for a root key.
func (k *Key) Parent() *Key {
	if len(k.Path) <= 1 {
		return nil
	}
	p := k.Clone()
	p.Path = p.Path[:len(p.Path)-1]
	return p
}

// Incomplete reports whether the last element has neither id nor name.
func (k *Key) Incomplete() bool {
	return len(k.Path) > 0 && !k.Last().HasIDOrName()
}

// Clone returns a deep copy of k.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	c := *k
	c.Path = append([]PathElement(nil), k.Path...)
	return &c
}

// SetID completes the last path element with id.
func (k *Key) SetID(id int64) {
	k.Path[len(k.Path)-1].ID = id
}

// IsAncestorOf reports whether k is a (non-strict) path prefix of other in
// the same app and namespace.
func (k *Key) IsAncestorOf(other *Key) bool {
	if k.AppID != other.AppID || k.Namespace != other.Namespace || len(k.Path) > len(other.Path) {
		return false
	}
	for i := range k.Path {
		if k.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.Compare(other) == 0
}

// Compare orders keys by app, namespace and then path element by element.
// A key sorts right after its ancestors.
func (k *Key) Compare(other *Key) int {
	if c := strings.Compare(k.AppID, other.AppID); c != 0 {
		return c
	}
	if c := strings.Compare(k.Namespace, other.Namespace); c != 0 {
		return c
	}
	for i := 0; i < len(k.Path) && i < len(other.Path); i++ {
		if c := k.Path[i].compare(other.Path[i]); c != 0 {
			return c
		}
	}
	return compareInt64(int64(len(k.Path)), int64(len(other.Path)))
}

// Validate checks that every path element has exactly one of id and name.
// The last element may carry neither when allowIncomplete is set.
func (k *Key) Validate(allowIncomplete bool) error {
	if len(k.Path) == 0 {
		return BadRequestf("key has an empty path")
	}
	for i, e := range k.Path {
		if e.Kind == "" {
			return BadRequestf("key path element %d has no kind", i)
		}
		if e.ID != 0 && e.Name != "" {
			return BadRequestf("key path element %s has both an id and a name", e)
		}
		if !e.HasIDOrName() && !(allowIncomplete && i == len(k.Path)-1) {
			return BadRequestf("key path element %s has neither an id nor a name", e)
		}
		if e.ID < 0 {
			return BadRequestf("key path element %s has a negative id", e)
		}
	}
	return nil
}

// Encode returns the sortable encoding of the key. Two keys are equal iff
// their encodings are.
func (k *Key) Encode() []byte {
	return AppendKey(nil, k)
}

func (k *Key) String() string {
	var buf bytes.Buffer
	buf.WriteString(k.AppID)
	if k.Namespace != "" {
		buf.WriteString("/" + k.Namespace)
	}
	for _, e := range k.Path {
		buf.WriteString("/")
		buf.WriteString(e.String())
	}
	return buf.String()
}

const (
	pathIDMarker   = byte(0x10)
	pathNameMarker = byte(0x20)
	pathEnd        = byte(0x01)
	pathElem       = byte(0x02)
)

// AppendKey appends the sortable encoding of k. Every path element starts
// with pathElem and the path ends with pathEnd, which sorts lower, so a key
// sorts directly before its descendants.
func AppendKey(b []byte, k *Key) []byte {
	b = codec.EncodeString(b, k.AppID)
	b = codec.EncodeString(b, k.Namespace)
	b = AppendPath(b, k.Path)
	return b
}

// AppendPath appends the sortable encoding of a key path.
func AppendPath(b []byte, path []PathElement) []byte {
	for _, e := range path {
		b = append(b, pathElem)
		b = codec.EncodeString(b, e.Kind)
		if e.Name != "" {
			b = append(b, pathNameMarker)
			b = codec.EncodeString(b, e.Name)
		} else {
			b = append(b, pathIDMarker)
			b = codec.EncodeVarint(b, e.ID)
		}
	}
	return append(b, pathEnd)
}

// DecodeKey decodes a key written by AppendKey.
func DecodeKey(b []byte) ([]byte, *Key, error) {
	k := &Key{}
	var err error
	if b, k.AppID, err = codec.DecodeString(b); err != nil {
		return nil, nil, err
	}
	if b, k.Namespace, err = codec.DecodeString(b); err != nil {
		return nil, nil, err
	}
	if b, k.Path, err = DecodePath(b); err != nil {
		return nil, nil, err
	}
	return b, k, nil
}

// DecodePath decodes a path written by AppendPath.
func DecodePath(b []byte) ([]byte, []PathElement, error) {
	var path []PathElement
	for {
		if len(b) == 0 {
			return nil, nil, InternalErrorf("truncated key path")
		}
		if b[0] == pathEnd {
			return b[1:], path, nil
		}
		if b[0] != pathElem {
			return nil, nil, InternalErrorf("invalid key path element marker %#x", b[0])
		}
		b = b[1:]
		var (
			e   PathElement
			err error
		)
		if b, e.Kind, err = codec.DecodeString(b); err != nil {
			return nil, nil, err
		}
		if len(b) == 0 {
			return nil, nil, InternalErrorf("truncated key path element")
		}
		marker := b[0]
		b = b[1:]
		switch marker {
		case pathIDMarker:
			b, e.ID, err = codec.DecodeVarint(b)
		case pathNameMarker:
			b, e.Name, err = codec.DecodeString(b)
		default:
			return nil, nil, InternalErrorf("invalid key path marker %#x", marker)
		}
		if err != nil {
			return nil, nil, err
		}
		path = append(path, e)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
