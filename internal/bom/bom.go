// Package bom derives glass and adhesive material quantities for a laminated panel.
package bom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// AdhesiveKind classifies the adhesive used between glass layers.
type AdhesiveKind string

const (
	// AdhesiveNano is the nano gel adhesive.
	AdhesiveNano AdhesiveKind = "NANO"
	// AdhesiveSoft is the soft ("mềm") adhesive.
	AdhesiveSoft AdhesiveKind = "SOFT"
	// AdhesiveOther covers any label outside the known set.
	AdhesiveOther AdhesiveKind = "OTHER"
)

const (
	outerPanes    = 2
	outerPaneMM   = 5
	innerPaneMM   = 4
	edgeInsetMM   = 20
	lossAllowance = "1.2"
)

var (
	// ErrMissingStructure indicates a product without a glass structure.
	ErrMissingStructure = errors.New("bom: glass structure missing")
	// ErrInvalidDimension indicates a non-numeric width or height.
	ErrInvalidDimension = errors.New("bom: invalid dimension")

	mmPerM     = decimal.NewFromInt(1000)
	mm2PerM2   = decimal.NewFromInt(1_000_000)
	inset      = decimal.NewFromInt(edgeInsetMM)
	lossFactor = decimal.RequireFromString(lossAllowance)
	nanoLabel  = normaliseLabel("nano")
	softLabels = []string{normaliseLabel("mềm"), normaliseLabel("soft")}
)

// GlassStructure describes the physical build-up of a product.
type GlassStructure struct {
	GlassLayers       int             `json:"glass_layers"`
	AdhesiveType      string          `json:"adhesive_type"`
	AdhesiveThickness decimal.Decimal `json:"adhesive_thickness"`
}

// Input carries one ordered product line.
type Input struct {
	Width       string
	Height      string
	Thickness   decimal.Decimal
	Quantity    decimal.Decimal
	GlueLayers  int
	GlassLayers int
	Tempered    bool
	Structure   *GlassStructure
}

// Result holds the derived material quantities for one line.
type Result struct {
	Glass4mm                  int
	Glass5mm                  int
	ButylType                 int
	AdhesiveArea              decimal.Decimal
	AdhesiveThicknessResidual decimal.Decimal
	AdhesivePerUnit           decimal.Decimal
	TotalAdhesive             decimal.Decimal
	ButylLength               decimal.Decimal
	Adhesive                  AdhesiveKind
	AdhesiveLabel             string
}

// Nano returns the line total attributed to the nano bucket.
func (r Result) Nano() decimal.Decimal { return r.bucket(AdhesiveNano) }

// Soft returns the line total attributed to the soft bucket.
func (r Result) Soft() decimal.Decimal { return r.bucket(AdhesiveSoft) }

// Other returns the line total attributed to unrecognised adhesive labels.
func (r Result) Other() decimal.Decimal { return r.bucket(AdhesiveOther) }

func (r Result) bucket(kind AdhesiveKind) decimal.Decimal {
	if r.Adhesive != kind {
		return decimal.Zero
	}
	return r.TotalAdhesive
}

// DimensionError reports an unparsable width or height.
type DimensionError struct {
	Field string
	Value string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("bom: %s %q is not numeric", e.Field, e.Value)
}

// Unwrap exposes ErrInvalidDimension.
func (e *DimensionError) Unwrap() error { return ErrInvalidDimension }

// Calculate derives the material quantities for in. It has no side effects.
func Calculate(in Input) (Result, error) {
	if in.Structure == nil {
		return Result{}, ErrMissingStructure
	}
	width, err := parseDimension("width", in.Width)
	if err != nil {
		return Result{}, err
	}
	height, err := parseDimension("height", in.Height)
	if err != nil {
		return Result{}, err
	}

	glass4 := in.Structure.GlassLayers - outerPanes
	if glass4 < 0 {
		glass4 = 0
	}
	res := Result{
		Glass4mm:  glass4,
		Glass5mm:  outerPanes,
		ButylType: int(in.Structure.AdhesiveThickness.IntPart()),
	}

	res.AdhesiveArea = width.Sub(inset).Mul(height.Sub(inset)).Div(mm2PerM2)
	res.AdhesiveThicknessResidual = in.Thickness.
		Sub(decimal.NewFromInt(int64(glass4 * innerPaneMM))).
		Sub(decimal.NewFromInt(int64(outerPanes * outerPaneMM)))
	res.AdhesivePerUnit = res.AdhesiveArea.Mul(res.AdhesiveThicknessResidual).Mul(lossFactor)
	res.ButylLength = width.Add(height).
		Mul(decimal.NewFromInt(2)).
		Mul(decimal.NewFromInt(int64(in.GlueLayers))).
		Div(mmPerM)
	res.TotalAdhesive = res.AdhesivePerUnit.Mul(in.Quantity)
	res.AdhesiveLabel = in.Structure.AdhesiveType
	res.Adhesive = ClassifyAdhesive(in.Structure.AdhesiveType)
	return res, nil
}

// ClassifyAdhesive maps a free-text adhesive label onto a bucket. Matching
// ignores case and Unicode composition.
func ClassifyAdhesive(label string) AdhesiveKind {
	key := normaliseLabel(label)
	if key == nanoLabel {
		return AdhesiveNano
	}
	for _, soft := range softLabels {
		if key == soft {
			return AdhesiveSoft
		}
	}
	return AdhesiveOther
}

// Casers are stateful, so each call gets its own.
func normaliseLabel(label string) string {
	folded := cases.Fold().String(norm.NFC.String(strings.TrimSpace(label)))
	return norm.NFC.String(folded)
}

func parseDimension(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, &DimensionError{Field: field, Value: raw}
	}
	return value, nil
}
