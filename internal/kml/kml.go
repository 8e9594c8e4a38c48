// Package kml extracts district boundaries from KML 2.2 documents and
// converts them to GeoJSON features. Only Polygon and MultiGeometry-of-
// Polygon placemarks are handled; points, lines, styles and inner rings
// are ignored.
package kml

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// Namespace is the KML 2.2 XML namespace. Elements outside it are ignored.
const Namespace = "http://www.opengis.net/kml/2.2"

// ErrMalformedInput indicates the input is not parseable XML. Callers
// should report it as a client error, not a server failure.
var ErrMalformedInput = errors.New("kml: malformed input")

// Feature is one district boundary in GeoJSON feature form.
type Feature struct {
	Properties map[string]string
	Geometry   geom.T // *geom.Polygon or *geom.MultiPolygon
}

// MarshalJSON encodes the feature with its geometry in GeoJSON form.
func (f *Feature) MarshalJSON() ([]byte, error) {
	g, err := geojson.Marshal(f.Geometry)
	if err != nil {
		return nil, eris.Wrap(err, "kml: encode geometry")
	}
	return json.Marshal(struct {
		Type       string            `json:"type"`
		Properties map[string]string `json:"properties"`
		Geometry   json.RawMessage   `json:"geometry"`
	}{
		Type:       "Feature",
		Properties: f.Properties,
		Geometry:   g,
	})
}

// Result is the outcome of parsing one KML document. Success is false when
// the document was structurally valid XML but contained no usable
// boundaries; Error then carries the reason.
type Result struct {
	Success  bool              `json:"success"`
	Features []*Feature        `json:"features"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Parse converts raw KML bytes into GeoJSON boundary features. The input
// is decoded as UTF-8 with a Latin-1 fallback. Malformed XML returns an
// error satisfying errors.Is(err, ErrMalformedInput); a well-formed
// document with no usable boundaries returns a Result with Success=false.
//
// Parse holds no state and is safe for concurrent use.
func Parse(raw []byte) (*Result, error) {
	doc := etree.NewDocument()
	// Strict mode: no custom entity map, no permissive recovery. etree
	// never resolves external entities or DTDs, so untrusted uploads
	// cannot trigger entity expansion or XXE fetches.
	doc.ReadSettings.Permissive = false
	if err := doc.ReadFromString(decodeText(raw)); err != nil {
		return nil, eris.Wrapf(ErrMalformedInput, "read document: %v", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, eris.Wrap(ErrMalformedInput, "empty document")
	}

	res := &Result{
		Features: []*Feature{},
		Metadata: documentMetadata(root),
	}

	placemarks := findAll(root, "Placemark")
	if len(placemarks) == 0 {
		zap.L().Warn("kml: no placemarks found")
		res.Error = "no placemarks found in KML file"
		return res, nil
	}

	for _, pm := range placemarks {
		g := placemarkGeometry(pm)
		if g == nil {
			zap.L().Warn("kml: placemark has no valid geometry, skipping")
			continue
		}
		res.Features = append(res.Features, &Feature{
			Properties: placemarkProperties(pm),
			Geometry:   g,
		})
	}

	if len(res.Features) == 0 {
		res.Error = "no valid district boundaries found in KML file"
		return res, nil
	}

	res.Success = true
	return res, nil
}

// decodeText decodes raw bytes as UTF-8, falling back to Latin-1. Latin-1
// maps every byte to a code point, so decoding never fails outright.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// documentMetadata reads name/description from the first Document element.
// Returns nil if there is no Document element or it has neither child.
func documentMetadata(root *etree.Element) map[string]string {
	docEl := findFirst(root, "Document")
	if docEl == nil {
		return nil
	}
	md := make(map[string]string)
	if v := childText(docEl, "name"); v != "" {
		md["document_name"] = v
	}
	if v := childText(docEl, "description"); v != "" {
		md["document_description"] = v
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// placemarkProperties collects name, description and ExtendedData entries.
// A later Data entry with a duplicate name overwrites the earlier one.
func placemarkProperties(pm *etree.Element) map[string]string {
	props := make(map[string]string)
	if v := childText(pm, "name"); v != "" {
		props["name"] = v
	}
	if v := childText(pm, "description"); v != "" {
		props["description"] = v
	}
	if ext := child(pm, "ExtendedData"); ext != nil {
		for _, data := range children(ext, "Data") {
			name := data.SelectAttrValue("name", "")
			if name == "" {
				continue
			}
			if v := childText(data, "value"); v != "" {
				props[name] = v
			}
		}
	}
	return props
}

// inNamespace reports whether el is the named element in the KML namespace.
func inNamespace(el *etree.Element, local string) bool {
	return el.Tag == local && el.NamespaceURI() == Namespace
}

// findAll returns all matching descendants of el in document order.
func findAll(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if inNamespace(c, local) {
			out = append(out, c)
		}
		out = append(out, findAll(c, local)...)
	}
	return out
}

// findFirst returns the first matching descendant of el in document order.
func findFirst(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if inNamespace(c, local) {
			return c
		}
		if found := findFirst(c, local); found != nil {
			return found
		}
	}
	return nil
}

// child returns the first matching direct child of el.
func child(el *etree.Element, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if inNamespace(c, local) {
			return c
		}
	}
	return nil
}

// children returns all matching direct children of el.
func children(el *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if inNamespace(c, local) {
			out = append(out, c)
		}
	}
	return out
}

// childText returns the trimmed text of the first matching direct child.
func childText(el *etree.Element, local string) string {
	if c := child(el, local); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
