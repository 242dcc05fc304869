package bom

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nanoLine() Input {
	return Input{
		Width:       "1000",
		Height:      "2000",
		Thickness:   dec("24"),
		Quantity:    dec("10"),
		GlueLayers:  2,
		GlassLayers: 4,
		Structure: &GlassStructure{
			GlassLayers:       4,
			AdhesiveType:      "nano",
			AdhesiveThickness: dec("6"),
		},
	}
}

func TestCalculateNanoLine(t *testing.T) {
	res, err := Calculate(nanoLine())
	require.NoError(t, err)

	require.Equal(t, 2, res.Glass4mm)
	require.Equal(t, 2, res.Glass5mm)
	require.Equal(t, 6, res.ButylType)
	require.True(t, res.AdhesiveArea.Equal(dec("1.9404")), res.AdhesiveArea.String())
	require.True(t, res.AdhesiveThicknessResidual.Equal(dec("6")))
	require.True(t, res.AdhesivePerUnit.Equal(dec("13.97088")), res.AdhesivePerUnit.String())
	require.True(t, res.TotalAdhesive.Equal(dec("139.7088")), res.TotalAdhesive.String())
	require.True(t, res.ButylLength.Equal(dec("12")), res.ButylLength.String())
	require.Equal(t, AdhesiveNano, res.Adhesive)
	require.True(t, res.Nano().Equal(dec("139.7088")))
	require.True(t, res.Soft().IsZero())
	require.True(t, res.Other().IsZero())
}

func TestCalculateIsDeterministic(t *testing.T) {
	first, err := Calculate(nanoLine())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Calculate(nanoLine())
		require.NoError(t, err)
		require.Equal(t, first.Glass4mm, again.Glass4mm)
		require.True(t, first.TotalAdhesive.Equal(again.TotalAdhesive))
		require.True(t, first.ButylLength.Equal(again.ButylLength))
	}
}

func TestCalculateTwoLayerStructureHasNoInnerPanes(t *testing.T) {
	in := nanoLine()
	in.Structure.GlassLayers = 1
	res, err := Calculate(in)
	require.NoError(t, err)
	require.Equal(t, 0, res.Glass4mm)
	require.True(t, res.AdhesiveThicknessResidual.Equal(dec("14")))
}

func TestCalculateRejectsNonNumericDimensions(t *testing.T) {
	in := nanoLine()
	in.Width = "abc"
	_, err := Calculate(in)
	require.ErrorIs(t, err, ErrInvalidDimension)

	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	require.Equal(t, "width", dimErr.Field)

	in = nanoLine()
	in.Height = ""
	_, err = Calculate(in)
	require.ErrorIs(t, err, ErrInvalidDimension)
}

func TestCalculateRequiresStructure(t *testing.T) {
	in := nanoLine()
	in.Structure = nil
	_, err := Calculate(in)
	require.ErrorIs(t, err, ErrMissingStructure)
}

func TestClassifyAdhesive(t *testing.T) {
	tests := []struct {
		label string
		want  AdhesiveKind
	}{
		{label: "nano", want: AdhesiveNano},
		{label: "NANO", want: AdhesiveNano},
		{label: " Nano ", want: AdhesiveNano},
		{label: "mềm", want: AdhesiveSoft},
		{label: "MỀM", want: AdhesiveSoft},
		{label: "m\u0065\u0302\u0300m", want: AdhesiveSoft},
		{label: "soft", want: AdhesiveSoft},
		{label: "pvb", want: AdhesiveOther},
		{label: "", want: AdhesiveOther},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ClassifyAdhesive(tc.label), tc.label)
	}
}

func TestCalculateUnknownAdhesiveGoesToOtherBucket(t *testing.T) {
	in := nanoLine()
	in.Structure.AdhesiveType = "EVA"
	res, err := Calculate(in)
	require.NoError(t, err)
	require.Equal(t, AdhesiveOther, res.Adhesive)
	require.Equal(t, "EVA", res.AdhesiveLabel)
	require.True(t, res.Other().Equal(dec("139.7088")))
	require.True(t, res.Nano().IsZero())
}
