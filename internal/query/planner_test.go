package query

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/Annany2002/nebula-dataapi/internal/core"
	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

func articlesModel() *domain.Model {
	return &domain.Model{
		ID:             1,
		Name:           "articles",
		TableName:      "articles",
		HasTimestamps:  true,
		HasSoftDeletes: true,
		Fields: []domain.Field{
			{Name: "title", Type: domain.TypeString, IsSearchable: true, IsSortable: true},
			{Name: "status", Type: domain.TypeEnum, Options: []string{"draft", "published"}, IsFilterable: true},
			{Name: "views", Type: domain.TypeInteger, IsFilterable: true, IsSortable: true},
			{Name: "body", Type: domain.TypeText, IsSearchable: true},
		},
	}
}

func renderPlan(p *Plan) []byte {
	var b strings.Builder
	selectSQL, selectArgs := p.SelectSQL()
	fmt.Fprintf(&b, "select: %s\nargs: %v\n", selectSQL, selectArgs)
	countSQL, countArgs := p.CountSQL()
	fmt.Fprintf(&b, "count: %s\nargs: %v\n", countSQL, countArgs)
	return []byte(b.String())
}

func TestBuild(t *testing.T) {
	notes := &domain.Model{Name: "notes", TableName: "notes", HasTimestamps: true}

	testCases := []struct {
		name   string
		model  *domain.Model
		params url.Values
		owner  *Ownership
	}{
		{name: "list_default", model: articlesModel(), params: url.Values{}},
		{
			name:  "list_filtered",
			model: articlesModel(),
			params: url.Values{
				"filter[status]": {"published"},
				"views":          {"10"},
				"owner":          {"someone"},
				"search":         {"50%_off"},
				"sort":           {"-views"},
				"page":           {"2"},
				"per_page":       {"5"},
			},
			owner: &Ownership{Field: "owner_id", Value: "u1"},
		},
		{
			name:  "list_ignored_sort",
			model: articlesModel(),
			params: url.Values{
				"sort":         {"body"},
				"direction":    {"asc"},
				"per_page":     {"500"},
				"filter[body]": {"x"},
			},
		},
		{name: "list_sort_timestamp", model: notes, params: url.Values{"sort": {"created_at"}, "page": {"3"}}},
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := Build(tc.model, core.ParseListQueryOptions(tc.params), tc.owner)
			g.Assert(t, tc.name, renderPlan(plan))
		})
	}
}

func TestBuildDoesNotShareArgs(t *testing.T) {
	plan := Build(articlesModel(), core.ParseListQueryOptions(url.Values{"views": {"3"}}), nil)
	_, args := plan.SelectSQL()
	args[0] = "tampered"
	_, again := plan.CountSQL()
	assert.Equal(t, []any{int64(3)}, again)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestLastPage(t *testing.T) {
	testCases := []struct {
		total   int64
		perPage int
		want    int
	}{
		{0, 15, 1},
		{1, 15, 1},
		{15, 15, 1},
		{16, 15, 2},
		{101, 10, 11},
		{5, 0, 1},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, LastPage(tc.total, tc.perPage), "total=%d per_page=%d", tc.total, tc.perPage)
	}
}
