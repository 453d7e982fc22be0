package diff

import (
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	odiff "github.com/r3labs/diff/v3"
)

// GetCustomDiffer returns a differ that compares uuid.UUID values as a whole.
func GetCustomDiffer() (*odiff.Differ, error) {
	return odiff.NewDiffer(odiff.CustomValueDiffers(&UUIDComparer{}))
}

// Change is one changed field, named by its diff tag path.
type Change struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// Changes lists the fields that differ between before and after, sorted by
// field path. Fields tagged diff:"-" are ignored.
func Changes(before, after any) ([]Change, error) {
	differ, err := GetCustomDiffer()
	if err != nil {
		return nil, err
	}
	changelog, err := differ.Diff(before, after)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(changelog))
	for _, c := range changelog {
		changes = append(changes, Change{
			Field: strings.Join(c.Path, "."),
			From:  c.From,
			To:    c.To,
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes, nil
}

// Fields returns only the field paths of changes.
func Fields(changes []Change) []string {
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	return fields
}

type UUIDComparer struct{}

var uuidType = reflect.TypeOf(uuid.UUID{})

func isUUID(v reflect.Value) bool {
	return v.Kind() == uuidType.Kind() && v.Type() == uuidType
}

// Match reports whether the pair holds uuids, one side may be missing.
func (c UUIDComparer) Match(a, b reflect.Value) bool {
	return (isUUID(a) && isUUID(b)) ||
		(a.Kind() == reflect.Invalid && isUUID(b)) ||
		(b.Kind() == reflect.Invalid && isUUID(a))
}

// Diff records a single update instead of one change per byte.
func (c UUIDComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	valA := reflect.Indirect(a)
	valB := reflect.Indirect(b)

	if !valA.IsValid() || !valB.IsValid() {
		switch {
		case valA.IsValid():
			cl.Add(odiff.DELETE, path, valA.Interface(), nil)
		case valB.IsValid():
			cl.Add(odiff.CREATE, path, nil, valB.Interface())
		}
		return nil
	}

	u1 := valA.Interface().(uuid.UUID)
	u2 := valB.Interface().(uuid.UUID)
	if u1 != u2 {
		cl.Add(odiff.UPDATE, path, u1, u2)
	}
	return nil
}

// InsertParentDiffer is a no-op, a uuid is a leaf.
func (c UUIDComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
}
