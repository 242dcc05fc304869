package production

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vnglass/glassflow/internal/bom"
	"github.com/vnglass/glassflow/internal/platform/httpx"
)

func nanoPlanInput() CreatePlanInput {
	return CreatePlanInput{
		SaleOrderID: testSaleOrderID,
		ActorID:     5,
		Products: []PlanProductInput{{
			ProductID:   productNano,
			Quantity:    d("10"),
			Thickness:   d("24"),
			GlueLayers:  2,
			GlassLayers: 4,
		}},
	}
}

func TestCreateProductionPlanComputesBOM(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	summary, err := f.svc.CreateProductionPlan(ctx, nanoPlanInput())
	require.NoError(t, err)
	require.NotZero(t, summary.PlanID)
	require.Equal(t, "Công ty An Phát", summary.CustomerName)
	require.Equal(t, PlanStatusInProduction, summary.Status)
	require.True(t, summary.Quantity.Equal(d("10")))
	require.True(t, summary.TotalAdhesiveNano.Equal(d("139.7088")), summary.TotalAdhesiveNano.String())
	require.True(t, summary.TotalAdhesiveSoft.IsZero())
	require.Empty(t, summary.Warnings)

	materials, err := f.svc.GetPlanMaterials(ctx, summary.PlanID)
	require.NoError(t, err)
	require.Len(t, materials.Lines, 1)
	line := materials.Lines[0]
	require.Equal(t, 2, line.Glass4mm)
	require.Equal(t, 2, line.Glass5mm)
	require.Equal(t, 6, line.ButylType)
	require.True(t, line.ButylLength.Equal(d("12")))
	require.True(t, line.Done.IsZero())
	require.True(t, materials.TotalButylLength.Equal(d("120")))

	has, err := f.svc.HasProductionPlan(ctx, testSaleOrderID)
	require.NoError(t, err)
	require.True(t, has)
	require.Contains(t, f.audit.actions(), "production:plan.create")
}

func TestCreateProductionPlanSplitsAdhesiveBuckets(t *testing.T) {
	f := newFixture()
	input := nanoPlanInput()
	input.Products = append(input.Products,
		PlanProductInput{ProductID: productSoft, Quantity: d("5"), Thickness: d("12"), GlueLayers: 1, GlassLayers: 2},
		PlanProductInput{ProductID: productUnknown, Quantity: d("1"), Thickness: d("12"), GlueLayers: 1, GlassLayers: 2},
	)

	summary, err := f.svc.CreateProductionPlan(context.Background(), input)
	require.NoError(t, err)
	require.True(t, summary.TotalAdhesiveNano.Equal(d("139.7088")))
	require.True(t, summary.TotalAdhesiveSoft.Equal(d("2.7648")), summary.TotalAdhesiveSoft.String())
	require.True(t, summary.TotalAdhesiveOther.IsPositive())
	require.Len(t, summary.Warnings, 1)
	require.Contains(t, summary.Warnings[0], "PVB")
	require.True(t, summary.Quantity.Equal(d("16")))
}

func TestCreateProductionPlanIsAtomic(t *testing.T) {
	cases := []struct {
		name    string
		product int64
		target  error
	}{
		{name: "missing structure", product: productNoLayout, target: bom.ErrMissingStructure},
		{name: "bad width", product: productBadWidth, target: bom.ErrInvalidDimension},
		{name: "unknown product", product: 404, target: ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			input := nanoPlanInput()
			input.Products = append(input.Products, PlanProductInput{
				ProductID: tc.product, Quantity: d("1"), Thickness: d("24"), GlueLayers: 1, GlassLayers: 2,
			})
			_, err := f.svc.CreateProductionPlan(context.Background(), input)
			require.ErrorIs(t, err, tc.target)
			require.ErrorIs(t, err, httpx.ErrValidation)

			plans, err := f.svc.ListPlans(context.Background())
			require.NoError(t, err)
			require.Empty(t, plans)
		})
	}
}

func TestCreateProductionPlanRollsBackOnWriteFailure(t *testing.T) {
	f := newFixture()
	f.repo.failDetailInsert = 2
	input := nanoPlanInput()
	input.Products = append(input.Products, PlanProductInput{
		ProductID: productSoft, Quantity: d("5"), Thickness: d("12"), GlueLayers: 1, GlassLayers: 2,
	})

	_, err := f.svc.CreateProductionPlan(context.Background(), input)
	require.Error(t, err)

	has, err := f.svc.HasProductionPlan(context.Background(), testSaleOrderID)
	require.NoError(t, err)
	require.False(t, has)
	require.Empty(t, f.repo.state.details)
}

func TestCreateProductionPlanValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	input := nanoPlanInput()
	input.Products[0].Quantity = d("0")
	_, err := f.svc.CreateProductionPlan(ctx, input)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	input = nanoPlanInput()
	input.Products[0].Thickness = d("-1")
	_, err = f.svc.CreateProductionPlan(ctx, input)
	require.ErrorIs(t, err, ErrInvalidThickness)

	input = nanoPlanInput()
	input.Products = nil
	_, err = f.svc.CreateProductionPlan(ctx, input)
	require.ErrorIs(t, err, httpx.ErrValidation)

	input = nanoPlanInput()
	input.SaleOrderID = 99
	_, err = f.svc.CreateProductionPlan(ctx, input)
	require.ErrorIs(t, err, ErrSaleOrderNotFound)

	_, err = f.svc.HasProductionPlan(ctx, 0)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPlanQueries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	summary, err := f.svc.CreateProductionPlan(ctx, nanoPlanInput())
	require.NoError(t, err)

	got, err := f.svc.GetPlan(ctx, summary.PlanID)
	require.NoError(t, err)
	require.Equal(t, "DH-0007", got.OrderCode)
	require.True(t, got.TotalAdhesiveNano.Equal(summary.TotalAdhesiveNano))

	products, err := f.svc.ListPlanProducts(ctx, summary.PlanID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.True(t, products[0].TotalQuantity.Equal(d("10")))
	require.True(t, products[0].Completed.IsZero())

	_, err = f.svc.GetPlan(ctx, 999)
	require.ErrorIs(t, err, ErrPlanNotFound)
}
