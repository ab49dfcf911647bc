package services

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
)

// ParseCatalog reads every <sheep> element of a catalog document, in document order.
//
// Missing numeric attributes default to 0 and a missing or non-positive size means
// the size is unknown. Elements with malformed numbers or an invalid frame range are
// skipped. A document without a root element is corrupt; a syntax error after the
// root keeps the elements read so far.
func ParseCatalog(data []byte) ([]models.ContentItem, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		items    []models.ContentItem
		sawRoot  bool
		parseErr error
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			parseErr = err
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "sheep" {
			continue
		}

		item, err := itemFromAttrs(start.Attr)
		if err != nil {
			continue
		}
		items = append(items, item)
	}

	if !sawRoot {
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrCatalogCorrupt, parseErr)
		}
		return nil, fmt.Errorf("%w: no root element", shared.ErrCatalogCorrupt)
	}
	return items, nil
}

func itemFromAttrs(attrs []xml.Attr) (models.ContentItem, error) {
	var (
		item models.ContentItem
		err  error
	)
	for _, a := range attrs {
		switch a.Name.Local {
		case "id":
			item.ID = a.Value
		case "generation":
			item.Generation, err = atoiOrZero(a.Value)
		case "first":
			item.First, err = atoiOrZero(a.Value)
		case "last":
			item.Last, err = atoiOrZero(a.Value)
		case "size":
			var n int64
			if a.Value != "" {
				n, err = strconv.ParseInt(a.Value, 10, 64)
			}
			if err == nil && n > 0 {
				item.Size = &n
			}
		case "url":
			item.URL = a.Value
		}
		if err != nil {
			return models.ContentItem{}, fmt.Errorf("attribute %s: %w", a.Name.Local, err)
		}
	}

	if err := item.Validate(); err != nil {
		return models.ContentItem{}, err
	}
	return item, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// Diff returns the catalog items whose composite key is not in local, in catalog order.
//
// Repeated keys are kept once, at their first position.
func Diff(items []models.ContentItem, local map[string]struct{}) []models.ContentItem {
	var out []models.ContentItem
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := item.FullID()
		if _, ok := local[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}
	return out
}
