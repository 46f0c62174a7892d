package projector

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/dynamic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceNode(save domain.SaveSpec) *domain.ChoiceNode {
	return &domain.ChoiceNode{
		NodeBase: domain.NodeBase{ID: "N1"},
		Save:     save,
		Options: []domain.Option{
			{Label: "Máster", Value: "MASTER", Next: "N2", Attributes: map[string]any{"area": "posgrado"}},
			{Label: "Aceptar", Next: "N3"},
		},
	}
}

func TestApply_ChoiceSingleKey(t *testing.T) {
	prev := domain.NewState(nil)
	next := New(nil, nil).Apply(context.Background(), choiceNode(domain.SaveSpec{Key: "tipoEstudio"}), domain.Selection{Value: "MASTER"}, prev)

	assert.Equal(t, "MASTER", next.String("tipoEstudio"))
	assert.Equal(t, 0, prev.Len(), "previous state is untouched")
}

func TestApply_ChoiceLabelIdentity(t *testing.T) {
	next := New(nil, nil).Apply(context.Background(), choiceNode(domain.SaveSpec{Key: "acceptedPrivacy"}),
		domain.Selection{Label: "Aceptar"}, domain.NewState(nil))
	assert.Equal(t, "Aceptar", next.String("acceptedPrivacy"))
}

func TestApply_ChoiceMapping(t *testing.T) {
	spec := domain.SaveSpec{Mapping: map[string]string{
		"value": "tipoEstudio",
		"label": "tipoEstudioLabel",
		"area":  "area",
		"ghost": "ghost",
	}}
	next := New(nil, nil).Apply(context.Background(), choiceNode(spec), domain.Selection{Value: "MASTER"}, domain.NewState(nil))

	assert.Equal(t, "MASTER", next.String("tipoEstudio"))
	assert.Equal(t, "Máster", next.String("tipoEstudioLabel"), "label comes from the option")
	assert.Equal(t, "posgrado", next.String("area"), "other sources are looked up on the option")
	_, ok := next.Get("ghost")
	assert.False(t, ok)
}

func TestApply_DynamicSingleKey(t *testing.T) {
	node := &domain.DynamicNode{
		NodeBase: domain.NodeBase{ID: "N6"},
		Query:    dynamic.QueryAvailableYears,
		Next:     "N7",
		Save:     domain.SaveSpec{Key: "selectedYear"},
	}
	reg := dynamic.NewRegistry(dynamic.CatalogQueries(nil)...)
	next := New(reg, reg).Apply(context.Background(), node, domain.Selection{Value: int64(2025), Label: "2025"}, domain.NewState(nil))

	v, ok := next.Get("selectedYear")
	require.True(t, ok)
	assert.Equal(t, int64(2025), v)
}

func TestApply_DynamicLabelFallback(t *testing.T) {
	node := &domain.DynamicNode{NodeBase: domain.NodeBase{ID: "N6"}, Query: "q", Next: "N7", Save: domain.SaveSpec{Key: "pick"}}
	next := New(nil, nil).Apply(context.Background(), node, domain.Selection{Label: "Solo label"}, domain.NewState(nil))
	assert.Equal(t, "Solo label", next.String("pick"))
}

type courseFetch struct {
	calls int
	seen  domain.State
	err   error
}

func (c *courseFetch) query() dynamic.Query {
	return dynamic.Query{
		Name: dynamic.QueryCoursesByFilters,
		Fetch: func(_ context.Context, state domain.State) ([]domain.Option, error) {
			c.calls++
			c.seen = state
			if c.err != nil {
				return nil, c.err
			}
			return []domain.Option{
				{Label: "Máster en Big Data", Value: "C-102", Attributes: map[string]any{"sf_id": "sf-102", "study_of_interest": "Data"}},
				{Label: "Máster en Marketing", Value: "C-103", Attributes: map[string]any{"sf_id": "sf-103", "study_of_interest": "Marketing"}},
			}, nil
		},
		Enrich: dynamic.CourseEnrichment(),
	}
}

func courseNode() *domain.DynamicNode {
	return &domain.DynamicNode{
		NodeBase: domain.NodeBase{ID: "N3"},
		Query:    dynamic.QueryCoursesByFilters,
		Next:     "N4",
		Save:     domain.SaveSpec{Mapping: map[string]string{"value": "selectedCourseId"}},
	}
}

func TestApply_DynamicEnrichment(t *testing.T) {
	fetch := &courseFetch{}
	reg := dynamic.NewRegistry(fetch.query())
	prev := domain.NewState(map[string]any{"type1": "MASTER"})

	next := New(reg, reg).Apply(context.Background(), courseNode(), domain.Selection{Value: "C-103"}, prev)

	assert.Equal(t, "C-103", next.String("selectedCourseId"))
	assert.Equal(t, "Máster en Marketing", next.String("selectedCourseName"))
	assert.Equal(t, "sf-103", next.String("selectedCourseSfId"))
	assert.Equal(t, "Marketing", next.String("selectedStudyInterest"))

	require.Equal(t, 1, fetch.calls)
	assert.Equal(t, "C-103", fetch.seen.String("selectedCourseId"), "query runs against the updated state")
}

func TestApply_DynamicEnrichmentFailureIsSwallowed(t *testing.T) {
	fetch := &courseFetch{err: errors.New("catalog offline")}
	reg := dynamic.NewRegistry(fetch.query())

	var events []*domain.ResolutionEvent
	p := New(reg, reg, WithHooks(domain.LifecycleHooks{
		OnResolutionError: func(_ context.Context, e *domain.ResolutionEvent) { events = append(events, e) },
	}))

	next := p.Apply(context.Background(), courseNode(), domain.Selection{Value: "C-102"}, domain.NewState(nil))

	assert.Equal(t, "C-102", next.String("selectedCourseId"), "partial state is kept")
	_, ok := next.Get("selectedCourseName")
	assert.False(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "N3", events[0].NodeID)
	assert.ErrorIs(t, events[0].Err, domain.ErrDynamicResolution)
}

func TestApply_DynamicEnrichmentNoMatch(t *testing.T) {
	fetch := &courseFetch{}
	reg := dynamic.NewRegistry(fetch.query())

	next := New(reg, reg).Apply(context.Background(), courseNode(), domain.Selection{Value: "C-999"}, domain.NewState(nil))
	assert.Equal(t, "C-999", next.String("selectedCourseId"))
	_, ok := next.Get("selectedCourseName")
	assert.False(t, ok)
}

func formNode() *domain.FormNode {
	return &domain.FormNode{
		NodeBase: domain.NodeBase{ID: "N9"},
		Next:     "N10",
		Fields: []domain.FormField{
			{Key: "nombre", Required: true},
			{Key: "email", Input: domain.FieldEmail, Required: true},
			{Key: "comment"},
		},
		Save: domain.SaveSpec{Mapping: map[string]string{
			"nombre":  "name",
			"email":   "email",
			"comment": "userComment",
		}},
		Mirror: map[string]string{"email": "emailCopy"},
	}
}

func TestApply_Form(t *testing.T) {
	prev := domain.NewState(map[string]any{"type1": "MASTER"})
	payload := domain.FormPayload{"nombre": "Ana", "email": "ana@example.com", "extra": "ignored"}

	next := New(nil, nil).Apply(context.Background(), formNode(), payload, prev)

	assert.Equal(t, "Ana", next.String("name"))
	assert.Equal(t, "ana@example.com", next.String("email"))
	assert.Equal(t, "ana@example.com", next.String("emailCopy"))
	v, ok := next.Get("userComment")
	require.True(t, ok, "absent declared field is stored blank")
	assert.Equal(t, "", v)
	_, ok = next.Get("extra")
	assert.False(t, ok)
	assert.Equal(t, "MASTER", next.String("type1"))
}

func TestApply_FormComment(t *testing.T) {
	node := &domain.FormNode{
		NodeBase: domain.NodeBase{ID: "N9"},
		Fields:   []domain.FormField{{Key: "nombre", Required: true}},
		Save: domain.SaveSpec{Mapping: map[string]string{
			"nombre":  "name",
			"comment": "notes",
		}},
	}
	p := New(nil, nil)
	ctx := context.Background()

	next := p.Apply(ctx, node, domain.FormPayload{"nombre": "Ana", "comment": "llamar tarde"}, domain.NewState(nil))
	assert.Equal(t, "llamar tarde", next.String("notes"))
	assert.Equal(t, "llamar tarde", next.String("userComment"))

	next = p.Apply(ctx, node, domain.FormPayload{"nombre": "Ana"}, domain.NewState(map[string]any{"userComment": "old"}))
	v, ok := next.Get("notes")
	require.True(t, ok, "undeclared comment is still stored")
	assert.Equal(t, "", v)
	v, ok = next.Get("userComment")
	require.True(t, ok)
	assert.Equal(t, "", v)
}

func TestApply_ReservedKeyIsNeverWritten(t *testing.T) {
	prev := domain.NewState(nil).WithLead("C-101")
	node := choiceNode(domain.SaveSpec{Key: domain.KeyCreatedLeads})

	next := New(nil, nil).Apply(context.Background(), node, domain.Selection{Value: "MASTER"}, prev)
	assert.Equal(t, []string{"C-101"}, next.CreatedLeads())
}

func TestApply_NoMutationKinds(t *testing.T) {
	prev := domain.NewState(map[string]any{"a": 1})
	p := New(nil, nil)
	ctx := context.Background()

	assert.True(t, prev.Equal(p.Apply(ctx, &domain.MessageNode{NodeBase: domain.NodeBase{ID: "M"}, Next: "E"}, domain.Selection{Value: "x"}, prev)))
	assert.True(t, prev.Equal(p.Apply(ctx, &domain.EndNode{NodeBase: domain.NodeBase{ID: "E"}}, domain.Selection{Value: "x"}, prev)))
	assert.True(t, prev.Equal(p.Apply(ctx, choiceNode(domain.SaveSpec{Key: "k"}), domain.FormPayload{"k": "v"}, prev)))
	assert.True(t, prev.Equal(p.Apply(ctx, formNode(), domain.Selection{Value: "x"}, prev)))
}
