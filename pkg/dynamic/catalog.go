package dynamic

import (
	"context"
	"strconv"
	"time"

	"github.com/aretw0/leadflow/pkg/catalog"
	"github.com/aretw0/leadflow/pkg/domain"
)

// Built-in query names.
const (
	QueryAvailableYears   = "getAvailableYears"
	QueryCoursesByFilters = "getCoursesByFilters"
)

// CourseSource is the catalog read used by the course query.
type CourseSource interface {
	CoursesByFilters(ctx context.Context, type1, type2 string) ([]catalog.Course, error)
}

// CatalogOption configures the built-in queries.
type CatalogOption func(*catalogQueries)

type catalogQueries struct {
	now      func() time.Time
	years    int
	type1Key string
	type2Key string
}

// WithClock sets the clock used by the year query.
func WithClock(now func() time.Time) CatalogOption {
	return func(c *catalogQueries) {
		c.now = now
	}
}

// WithYearSpan sets how many years the year query offers, starting with the current one.
func WithYearSpan(n int) CatalogOption {
	return func(c *catalogQueries) {
		if n > 0 {
			c.years = n
		}
	}
}

// WithFilterKeys sets the state keys the course query filters on.
func WithFilterKeys(type1, type2 string) CatalogOption {
	return func(c *catalogQueries) {
		c.type1Key = type1
		c.type2Key = type2
	}
}

// CourseEnrichment is the enrichment declared by the course query.
func CourseEnrichment() map[string]string {
	return map[string]string{
		"label":             "selectedCourseName",
		"sf_id":             "selectedCourseSfId",
		"study_of_interest": "selectedStudyInterest",
	}
}

// CatalogQueries returns the year and course queries backed by src.
func CatalogQueries(src CourseSource, opts ...CatalogOption) []Query {
	c := &catalogQueries{
		now:      time.Now,
		years:    3,
		type1Key: "type1",
		type2Key: "type2",
	}
	for _, opt := range opts {
		opt(c)
	}
	return []Query{
		{Name: QueryAvailableYears, Fetch: c.availableYears},
		{
			Name: QueryCoursesByFilters,
			Fetch: func(ctx context.Context, state domain.State) ([]domain.Option, error) {
				return c.coursesByFilters(ctx, src, state)
			},
			Enrich: CourseEnrichment(),
		},
	}
}

func (c *catalogQueries) availableYears(_ context.Context, _ domain.State) ([]domain.Option, error) {
	current := c.now().Year()
	out := make([]domain.Option, 0, c.years)
	for i := 0; i < c.years; i++ {
		y := current + i
		out = append(out, domain.Option{Label: strconv.Itoa(y), Value: int64(y)})
	}
	return out, nil
}

func (c *catalogQueries) coursesByFilters(ctx context.Context, src CourseSource, state domain.State) ([]domain.Option, error) {
	courses, err := src.CoursesByFilters(ctx, state.String(c.type1Key), state.String(c.type2Key))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Option, 0, len(courses))
	for _, course := range courses {
		out = append(out, domain.Option{
			Label: course.Name,
			Value: course.ID,
			Attributes: map[string]any{
				"sf_id":             course.SFID,
				"study_of_interest": course.StudyOfInterest,
			},
		})
	}
	return out, nil
}
