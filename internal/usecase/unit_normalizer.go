package usecase

import (
	"strings"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/shopspring/decimal"
)

// pricePerUnitPlaces is the intermediate precision kept for per-unit prices.
// Display rounding to 2 places happens at the edges only.
const pricePerUnitPlaces = 6

// Conversion describes how a unit token maps onto its family's canonical unit.
// quantity * Factor = quantity in CanonicalUnit.
type Conversion struct {
	Family        domain.UnitFamily
	CanonicalUnit string
	Factor        decimal.Decimal
}

// canonicalUnits names the unit every family is normalized into
var canonicalUnits = map[domain.UnitFamily]string{
	domain.FamilyMass:   "kg",
	domain.FamilyVolume: "l",
	domain.FamilyCount:  "unit",
	domain.FamilyLength: "m",
}

type unitDef struct {
	family domain.UnitFamily
	factor string
}

// unitTable is the bounded unit vocabulary seen in Ecuadorian retailer feeds,
// in Spanish and English spellings.
var unitTable = map[string]unitDef{
	// Mass -> kg
	"mg":         {domain.FamilyMass, "0.000001"},
	"g":          {domain.FamilyMass, "0.001"},
	"gr":         {domain.FamilyMass, "0.001"},
	"grs":        {domain.FamilyMass, "0.001"},
	"gramo":      {domain.FamilyMass, "0.001"},
	"gramos":     {domain.FamilyMass, "0.001"},
	"gram":       {domain.FamilyMass, "0.001"},
	"grams":      {domain.FamilyMass, "0.001"},
	"kg":         {domain.FamilyMass, "1"},
	"kgs":        {domain.FamilyMass, "1"},
	"kilo":       {domain.FamilyMass, "1"},
	"kilos":      {domain.FamilyMass, "1"},
	"kilogramo":  {domain.FamilyMass, "1"},
	"kilogramos": {domain.FamilyMass, "1"},
	"kilogram":   {domain.FamilyMass, "1"},
	"kilograms":  {domain.FamilyMass, "1"},
	"lb":         {domain.FamilyMass, "0.45359237"},
	"lbs":        {domain.FamilyMass, "0.45359237"},
	"libra":      {domain.FamilyMass, "0.45359237"},
	"libras":     {domain.FamilyMass, "0.45359237"},
	"pound":      {domain.FamilyMass, "0.45359237"},
	"pounds":     {domain.FamilyMass, "0.45359237"},
	"oz":         {domain.FamilyMass, "0.028349523125"},
	"onza":       {domain.FamilyMass, "0.028349523125"},
	"onzas":      {domain.FamilyMass, "0.028349523125"},
	"ounce":      {domain.FamilyMass, "0.028349523125"},
	"ounces":     {domain.FamilyMass, "0.028349523125"},

	// Volume -> l
	"ml":          {domain.FamilyVolume, "0.001"},
	"mls":         {domain.FamilyVolume, "0.001"},
	"cc":          {domain.FamilyVolume, "0.001"},
	"mililitro":   {domain.FamilyVolume, "0.001"},
	"mililitros":  {domain.FamilyVolume, "0.001"},
	"milliliter":  {domain.FamilyVolume, "0.001"},
	"milliliters": {domain.FamilyVolume, "0.001"},
	"cl":          {domain.FamilyVolume, "0.01"},
	"dl":          {domain.FamilyVolume, "0.1"},
	"l":           {domain.FamilyVolume, "1"},
	"lt":          {domain.FamilyVolume, "1"},
	"lts":         {domain.FamilyVolume, "1"},
	"ltr":         {domain.FamilyVolume, "1"},
	"litro":       {domain.FamilyVolume, "1"},
	"litros":      {domain.FamilyVolume, "1"},
	"liter":       {domain.FamilyVolume, "1"},
	"liters":      {domain.FamilyVolume, "1"},
	"litre":       {domain.FamilyVolume, "1"},
	"litres":      {domain.FamilyVolume, "1"},
	"gal":         {domain.FamilyVolume, "3.785411784"},
	"galon":       {domain.FamilyVolume, "3.785411784"},
	"galones":     {domain.FamilyVolume, "3.785411784"},
	"gallon":      {domain.FamilyVolume, "3.785411784"},
	"gallons":     {domain.FamilyVolume, "3.785411784"},
	"floz":        {domain.FamilyVolume, "0.0295735295625"},

	// Count -> unit
	"u":        {domain.FamilyCount, "1"},
	"un":       {domain.FamilyCount, "1"},
	"und":      {domain.FamilyCount, "1"},
	"unds":     {domain.FamilyCount, "1"},
	"unid":     {domain.FamilyCount, "1"},
	"unidad":   {domain.FamilyCount, "1"},
	"unidades": {domain.FamilyCount, "1"},
	"unit":     {domain.FamilyCount, "1"},
	"units":    {domain.FamilyCount, "1"},
	"ea":       {domain.FamilyCount, "1"},
	"each":     {domain.FamilyCount, "1"},
	"pc":       {domain.FamilyCount, "1"},
	"pcs":      {domain.FamilyCount, "1"},
	"pieza":    {domain.FamilyCount, "1"},
	"piezas":   {domain.FamilyCount, "1"},
	"ct":       {domain.FamilyCount, "1"},
	"count":    {domain.FamilyCount, "1"},
	"docena":   {domain.FamilyCount, "12"},
	"docenas":  {domain.FamilyCount, "12"},
	"dozen":    {domain.FamilyCount, "12"},

	// Length -> m
	"mm":     {domain.FamilyLength, "0.001"},
	"cm":     {domain.FamilyLength, "0.01"},
	"m":      {domain.FamilyLength, "1"},
	"mt":     {domain.FamilyLength, "1"},
	"mts":    {domain.FamilyLength, "1"},
	"metro":  {domain.FamilyLength, "1"},
	"metros": {domain.FamilyLength, "1"},
	"meter":  {domain.FamilyLength, "1"},
	"meters": {domain.FamilyLength, "1"},
}

// UnitNormalizer converts (quantity, unit) pairs into canonical units.
// It holds no mutable state and is safe for concurrent use.
type UnitNormalizer struct {
	conversions map[string]Conversion
}

// NewUnitNormalizer creates a normalizer over the built-in unit vocabulary
func NewUnitNormalizer() *UnitNormalizer {
	conversions := make(map[string]Conversion, len(unitTable))
	for token, def := range unitTable {
		conversions[token] = Conversion{
			Family:        def.family,
			CanonicalUnit: canonicalUnits[def.family],
			Factor:        decimal.RequireFromString(def.factor),
		}
	}
	return &UnitNormalizer{conversions: conversions}
}

// Lookup resolves a unit token without looking at a quantity
func (n *UnitNormalizer) Lookup(unit string) (Conversion, error) {
	token := normalizeUnitToken(unit)
	if token == "" {
		return Conversion{}, &domain.InvalidListingError{Reason: "unit is empty"}
	}
	conv, ok := n.conversions[token]
	if !ok {
		return Conversion{}, &domain.UnrecognizedUnitError{Unit: unit}
	}
	return conv, nil
}

// Normalize returns the canonical unit and conversion factor for quantity expressed in unit
func (n *UnitNormalizer) Normalize(quantity decimal.Decimal, unit string) (Conversion, error) {
	if !quantity.IsPositive() {
		return Conversion{}, &domain.InvalidListingError{Reason: "quantity must be positive"}
	}
	return n.Lookup(unit)
}

// NormalizeListing validates a listing and computes its price per canonical unit
func (n *UnitNormalizer) NormalizeListing(l domain.Listing) (domain.NormalizedListing, error) {
	if err := validateListing(l); err != nil {
		return domain.NormalizedListing{}, err
	}

	conv, err := n.Normalize(l.Quantity, l.Unit)
	if err != nil {
		if invalid, ok := err.(*domain.InvalidListingError); ok {
			invalid.ListingID = l.ID
		}
		return domain.NormalizedListing{}, err
	}

	canonicalQty := l.Quantity.Mul(conv.Factor)
	return domain.NormalizedListing{
		Listing:           l,
		Family:            conv.Family,
		CanonicalUnit:     conv.CanonicalUnit,
		CanonicalQuantity: canonicalQty,
		PricePerUnit:      l.Price.DivRound(canonicalQty, pricePerUnitPlaces),
		Comparable:        true,
	}, nil
}

// OpaqueListing keeps a listing with an unrecognized unit as a raw,
// non-comparable count. Callers must validate the listing first.
func (n *UnitNormalizer) OpaqueListing(l domain.Listing) domain.NormalizedListing {
	return domain.NormalizedListing{
		Listing:           l,
		Family:            domain.FamilyOpaque,
		CanonicalUnit:     normalizeUnitToken(l.Unit),
		CanonicalQuantity: l.Quantity,
		PricePerUnit:      l.Price.DivRound(l.Quantity, pricePerUnitPlaces),
		Comparable:        false,
	}
}

// IsUnitToken reports whether token is part of the unit vocabulary
func (n *UnitNormalizer) IsUnitToken(token string) bool {
	_, ok := n.conversions[normalizeUnitToken(token)]
	return ok
}

// validateListing checks the price, quantity and unit invariants
func validateListing(l domain.Listing) error {
	switch {
	case l.Price.IsNegative():
		return &domain.InvalidListingError{ListingID: l.ID, Reason: "price must not be negative"}
	case !l.Quantity.IsPositive():
		return &domain.InvalidListingError{ListingID: l.ID, Reason: "quantity must be positive"}
	case strings.TrimSpace(l.Unit) == "":
		return &domain.InvalidListingError{ListingID: l.ID, Reason: "unit is empty"}
	}
	return nil
}

// normalizeUnitToken lowercases, folds accents and drops dots and inner spaces
// so "Lts.", "fl oz" and "Galón" hit the table.
func normalizeUnitToken(unit string) string {
	token := strings.ToLower(foldAccents(strings.TrimSpace(unit)))
	token = strings.ReplaceAll(token, ".", "")
	return strings.Join(strings.Fields(token), "")
}
