package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codetrek/syntrix-go/pkg/model"
)

func userDoc(path string, data map[string]interface{}) *model.Document {
	return model.NewDocument(path, data)
}

func TestEvaluator_Matches(t *testing.T) {
	eval := NewEvaluator()
	q := model.Query{
		Collection: "users",
		Filters: model.Filters{
			{Field: "age", Op: ">=", Value: 18},
			{Field: "role", Op: "==", Value: "member"},
		},
	}

	cases := []struct {
		name string
		doc  *model.Document
		want bool
	}{
		{"matching", userDoc("users/1", map[string]interface{}{"age": 20, "role": "member"}), true},
		{"age below", userDoc("users/2", map[string]interface{}{"age": 17, "role": "member"}), false},
		{"wrong role", userDoc("users/3", map[string]interface{}{"age": 20, "role": "admin"}), false},
		{"missing field", userDoc("users/4", map[string]interface{}{"role": "member"}), false},
		{"wrong collection", userDoc("posts/1", map[string]interface{}{"age": 20, "role": "member"}), false},
		{"absent", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eval.Matches(q, tc.doc))
		})
	}
}

func TestEvaluator_MatchesDeletedOnlyWhenShown(t *testing.T) {
	eval := NewEvaluator()
	doc := userDoc("users/1", map[string]interface{}{"age": 20})
	doc.Deleted = true

	assert.False(t, eval.Matches(model.Query{Collection: "users"}, doc))
	assert.True(t, eval.Matches(model.Query{Collection: "users", ShowDeleted: true}, doc))
}

func TestEvaluator_CompareByOrderClauses(t *testing.T) {
	eval := NewEvaluator()
	q := model.Query{
		Collection: "users",
		OrderBy: []model.Order{
			{Field: "age", Direction: "desc"},
			{Field: "name", Direction: "asc"},
		},
	}

	older := userDoc("users/1", map[string]interface{}{"age": 40, "name": "zoe"})
	youngA := userDoc("users/2", map[string]interface{}{"age": 20, "name": "ann"})
	youngB := userDoc("users/3", map[string]interface{}{"age": 20, "name": "bob"})

	assert.Negative(t, eval.Compare(q, older, youngA))
	assert.Negative(t, eval.Compare(q, youngA, youngB))
	assert.Positive(t, eval.Compare(q, youngB, older))
}

func TestEvaluator_CompareFallsBackToPath(t *testing.T) {
	eval := NewEvaluator()
	q := model.Query{Collection: "users"}

	a := userDoc("users/a", nil)
	b := userDoc("users/b", nil)

	assert.Negative(t, eval.Compare(q, a, b))
	assert.Positive(t, eval.Compare(q, b, a))
	assert.Zero(t, eval.Compare(q, a, a))
}

func TestEvaluator_CompareMixedTypes(t *testing.T) {
	eval := NewEvaluator()
	q := model.Query{Collection: "users", OrderBy: []model.Order{{Field: "v", Direction: "asc"}}}

	missing := userDoc("users/0", map[string]interface{}{})
	boolean := userDoc("users/1", map[string]interface{}{"v": true})
	number := userDoc("users/2", map[string]interface{}{"v": 3})
	str := userDoc("users/3", map[string]interface{}{"v": "x"})

	assert.Negative(t, eval.Compare(q, missing, boolean))
	assert.Negative(t, eval.Compare(q, boolean, number))
	assert.Negative(t, eval.Compare(q, number, str))
}
