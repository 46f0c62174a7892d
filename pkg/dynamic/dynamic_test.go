package dynamic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/leadflow/pkg/catalog"
	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/dynamic"
	"github.com/aretw0/leadflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.OptionResolver = (*dynamic.Registry)(nil)
	_ ports.Enricher       = (*dynamic.Registry)(nil)
)

type fakeCourses struct {
	calls      int
	lastFilter [2]string
	courses    []catalog.Course
	err        error
}

func (f *fakeCourses) CoursesByFilters(_ context.Context, type1, type2 string) ([]catalog.Course, error) {
	f.calls++
	f.lastFilter = [2]string{type1, type2}
	return f.courses, f.err
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func TestAvailableYears(t *testing.T) {
	reg := dynamic.NewRegistry(dynamic.CatalogQueries(&fakeCourses{}, dynamic.WithClock(fixedClock))...)

	opts, err := reg.Resolve(context.Background(), dynamic.QueryAvailableYears, domain.NewState(nil))
	require.NoError(t, err)
	assert.Equal(t, []domain.Option{
		{Label: "2025", Value: int64(2025)},
		{Label: "2026", Value: int64(2026)},
		{Label: "2027", Value: int64(2027)},
	}, opts)

	_, ok := reg.Enrichment(dynamic.QueryAvailableYears)
	assert.False(t, ok)
}

func TestCoursesByFilters_LiveFetchEveryCall(t *testing.T) {
	src := &fakeCourses{courses: []catalog.Course{
		{ID: "C-102", SFID: "sf-102", Name: "Máster en Big Data", StudyOfInterest: "Data"},
	}}
	reg := dynamic.NewRegistry(dynamic.CatalogQueries(src)...)
	state := domain.NewState(map[string]any{"type1": "MASTER", "type2": "ONLINE"})

	for i := 0; i < 2; i++ {
		opts, err := reg.Resolve(context.Background(), dynamic.QueryCoursesByFilters, state)
		require.NoError(t, err)
		require.Len(t, opts, 1)
		assert.Equal(t, "C-102", opts[0].Value)
		assert.Equal(t, "Máster en Big Data", opts[0].Label)
		assert.Equal(t, "sf-102", opts[0].Attributes["sf_id"])
	}
	assert.Equal(t, 2, src.calls, "no caching")
	assert.Equal(t, [2]string{"MASTER", "ONLINE"}, src.lastFilter)

	enrich, ok := reg.Enrichment(dynamic.QueryCoursesByFilters)
	require.True(t, ok)
	assert.Equal(t, "selectedCourseName", enrich["label"])
	enrich["label"] = "mutated"
	again, _ := reg.Enrichment(dynamic.QueryCoursesByFilters)
	assert.Equal(t, "selectedCourseName", again["label"], "enrichment is returned as a copy")
}

func TestCoursesByFilters_CustomKeys(t *testing.T) {
	src := &fakeCourses{}
	reg := dynamic.NewRegistry(dynamic.CatalogQueries(src, dynamic.WithFilterKeys("tipoEstudio1", "tipoEstudio2"))...)

	_, err := reg.Resolve(context.Background(), dynamic.QueryCoursesByFilters,
		domain.NewState(map[string]any{"tipoEstudio1": "CURSO"}))
	require.NoError(t, err)
	assert.Equal(t, [2]string{"CURSO", ""}, src.lastFilter)
}

func TestResolve_Errors(t *testing.T) {
	boom := errors.New("db down")
	reg := dynamic.NewRegistry(dynamic.CatalogQueries(&fakeCourses{err: boom})...)

	_, err := reg.Resolve(context.Background(), dynamic.QueryCoursesByFilters, domain.NewState(nil))
	assert.ErrorIs(t, err, domain.ErrDynamicResolution)
	assert.ErrorIs(t, err, boom)

	_, err = reg.Resolve(context.Background(), "getWeather", domain.NewState(nil))
	assert.ErrorIs(t, err, dynamic.ErrUnknownQuery)
	var dre *domain.DynamicResolutionError
	require.True(t, errors.As(err, &dre))
	assert.Equal(t, "getWeather", dre.Query)
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	reg := dynamic.NewRegistry()
	reg.Register(dynamic.Query{Name: "q", Fetch: func(context.Context, domain.State) ([]domain.Option, error) {
		return []domain.Option{{Label: "a"}}, nil
	}})
	reg.Register(dynamic.Query{Name: "q", Fetch: func(context.Context, domain.State) ([]domain.Option, error) {
		return []domain.Option{{Label: "b"}}, nil
	}})

	opts, err := reg.Resolve(context.Background(), "q", domain.NewState(nil))
	require.NoError(t, err)
	assert.Equal(t, "b", opts[0].Label)
	assert.Equal(t, []string{"q"}, reg.Names())
}

func TestCatalogQueries_WithRealCatalog(t *testing.T) {
	repo, err := catalog.OpenMemory()
	require.NoError(t, err)
	defer repo.Close()
	_, err = repo.Upsert(context.Background(),
		catalog.Course{ID: "C-1", SFID: "sf-1", Name: "Grado en Derecho", StudyType1: "GRADO", StudyType2: "PRESENCIAL", StudyOfInterest: "Law"},
	)
	require.NoError(t, err)

	reg := dynamic.NewRegistry(dynamic.CatalogQueries(repo)...)
	opts, err := reg.Resolve(context.Background(), dynamic.QueryCoursesByFilters,
		domain.NewState(map[string]any{"type1": "GRADO", "type2": "PRESENCIAL"}))
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "Law", opts[0].Attributes["study_of_interest"])
}
