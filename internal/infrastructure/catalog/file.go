package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Supported catalog file formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatXLSX = "xlsx"
)

// FileProvider reads a catalog snapshot from a JSON, YAML or XLSX export
type FileProvider struct {
	path   string
	logger zerolog.Logger
}

// NewFileProvider creates a provider for the file at path
func NewFileProvider(path string, logger zerolog.Logger) *FileProvider {
	return &FileProvider{
		path:   path,
		logger: logger.With().Str("component", "catalog_file").Str("path", path).Logger(),
	}
}

// FetchCatalog reads and decodes the whole file on every call
func (p *FileProvider) FetchCatalog(ctx context.Context) (*domain.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := FormatFromPath(p.path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat catalog file: %w", err)
	}

	listings, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}

	p.logger.Debug().Int("listings", len(listings)).Str("format", format).Msg("catalog file loaded")
	return domain.NewCatalog(listings, info.ModTime()), nil
}

// FormatFromPath picks the decoder from the file extension
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported catalog file extension %q", filepath.Ext(path))
	}
}

// Decode reads listings in the given format. JSON and YAML accept either a
// bare list of products or an object with a "products" list.
func Decode(r io.Reader, format string) ([]domain.Listing, error) {
	var (
		records []ProductRecord
		err     error
	)
	switch format {
	case FormatJSON:
		records, err = decodeJSON(r)
	case FormatYAML:
		records, err = decodeYAML(r)
	case FormatXLSX:
		records, err = decodeXLSX(r)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return MapToListings(records), nil
}

func decodeJSON(r io.Reader) ([]ProductRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []ProductRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var wrapped struct {
		Products []ProductRecord `json:"products"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Products, nil
}

// yamlRecord mirrors ProductRecord with scalar fields kept as text so
// prices keep their exact decimal digits.
type yamlRecord struct {
	ID          string  `yaml:"id"`
	ExternalID  string  `yaml:"external_id"`
	Name        string  `yaml:"name"`
	Supermarket string  `yaml:"supermarket"`
	Price       string  `yaml:"price"`
	Quantity    string  `yaml:"quantity"`
	Unit        *string `yaml:"unit"`
	ImageURL    *string `yaml:"image_url"`
}

func decodeYAML(r io.Reader) ([]ProductRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var raw []yamlRecord
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var wrapped struct {
			Products []yamlRecord `yaml:"products"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, err
		}
		raw = wrapped.Products
	} else if err := root.Decode(&raw); err != nil {
		return nil, err
	}

	records := make([]ProductRecord, 0, len(raw))
	for i, y := range raw {
		rec, err := y.toRecord()
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (y yamlRecord) toRecord() (ProductRecord, error) {
	price, err := parseDecimal("price", y.Price)
	if err != nil {
		return ProductRecord{}, err
	}
	quantity, err := parseNullDecimal("quantity", y.Quantity)
	if err != nil {
		return ProductRecord{}, err
	}
	return ProductRecord{
		ID:          domain.ListingID(strings.TrimSpace(y.ID)),
		ExternalID:  y.ExternalID,
		Name:        y.Name,
		Supermarket: y.Supermarket,
		Price:       price,
		Quantity:    quantity,
		Unit:        y.Unit,
		ImageURL:    y.ImageURL,
	}, nil
}

// decodeXLSX reads the first sheet. The first row is a header naming the
// columns; matching is case-insensitive and column order is free.
func decodeXLSX(r io.Reader) ([]ProductRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "supermarket", "price"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []ProductRecord
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		line := i + 2

		price, err := parseDecimal("price", cell(row, "price"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		quantity, err := parseNullDecimal("quantity", cell(row, "quantity"))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		rec := ProductRecord{
			ID:          domain.ListingID(cell(row, "id")),
			ExternalID:  cell(row, "external_id"),
			Name:        cell(row, "name"),
			Supermarket: cell(row, "supermarket"),
			Price:       price,
			Quantity:    quantity,
		}
		if unit := cell(row, "unit"); unit != "" {
			rec.Unit = &unit
		}
		if img := cell(row, "image_url"); img != "" {
			rec.ImageURL = &img
		}
		records = append(records, rec)
	}
	return records, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseDecimal accepts "3.50" and "3,50"
func parseDecimal(field, s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return decimal.Zero, fmt.Errorf("%s is empty", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, s)
	}
	return d, nil
}

func parseNullDecimal(field, s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(field, s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
