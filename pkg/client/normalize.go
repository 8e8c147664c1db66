package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/MCT-Salman/invocca/pkg/types"
)

var (
	// ErrNoItems is returned when a list body carries no recognisable array.
	ErrNoItems = errors.New("list response has no items")
	// ErrItemWithoutID is returned when a list item carries neither
	// metadata.id nor a top-level id.
	ErrItemWithoutID = errors.New("list item has no id")
)

// listPaths are tried in order against an object body.
func listPaths(name string) [][]string {
	return [][]string{
		{"items"},
		{"data"},
		{"data", "items"},
		{"data", name},
		{name},
	}
}

// NormalizeList extracts the raw items of a list response. Older endpoints
// answer with a bare array, the envelope puts items under "items", and some
// proxies wrap the payload in "data" or key it by resource name; the first
// array found in that order wins. A null array yields an empty list.
func NormalizeList(body []byte, name string) ([]json.RawMessage, error) {
	_, typ, _, err := jsonparser.Get(body)
	if err != nil {
		return nil, fmt.Errorf("parsing list: %w", err)
	}
	switch typ {
	case jsonparser.Array:
		return collect(body)
	case jsonparser.Null:
		return []json.RawMessage{}, nil
	case jsonparser.Object:
	default:
		return nil, fmt.Errorf("parsing list: unexpected %v body", typ)
	}

	for _, path := range listPaths(name) {
		v, t, _, err := jsonparser.Get(body, path...)
		if err != nil {
			continue
		}
		switch t {
		case jsonparser.Array:
			return collect(v)
		case jsonparser.Null:
			return []json.RawMessage{}, nil
		}
	}
	return nil, ErrNoItems
}

// listTotal returns metadata.totalCount when present.
func listTotal(body []byte) (int, bool) {
	n, err := jsonparser.GetInt(body, "metadata", "totalCount")
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// decodeItem decodes one list item. Enveloped items carry a spec object;
// anything else is a plain record holding the spec fields next to its id.
// The id comes from metadata.id, falling back to a top-level id.
func decodeItem[T any](item []byte) (types.Resource[T], error) {
	var res types.Resource[T]
	if _, t, _, err := jsonparser.Get(item, "spec"); err == nil && t == jsonparser.Object {
		if err := json.Unmarshal(item, &res); err != nil {
			return res, err
		}
	} else if err := json.Unmarshal(item, &res.Spec); err != nil {
		return res, err
	}

	if res.Metadata.ID == "" {
		id, ok := topLevelID(item)
		if !ok {
			return res, ErrItemWithoutID
		}
		res.Metadata.ID = id
	}
	return res, nil
}

func topLevelID(item []byte) (string, bool) {
	v, t, _, err := jsonparser.Get(item, "id")
	if err != nil {
		return "", false
	}
	switch t {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		return s, err == nil && s != ""
	case jsonparser.Number:
		return string(v), true
	}
	return "", false
}

func collect(array []byte) ([]json.RawMessage, error) {
	items := []json.RawMessage{}
	var itemErr error
	_, err := jsonparser.ArrayEach(array, func(value []byte, t jsonparser.ValueType, _ int, err error) {
		if err != nil {
			itemErr = err
			return
		}
		if t != jsonparser.Object {
			itemErr = fmt.Errorf("list item is %v, not an object", t)
			return
		}
		items = append(items, append(json.RawMessage(nil), value...))
	})
	if err != nil {
		return nil, fmt.Errorf("parsing list items: %w", err)
	}
	if itemErr != nil {
		return nil, fmt.Errorf("parsing list items: %w", itemErr)
	}
	return items, nil
}
