package predicate

import (
	"log"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/codetrek/syntrix-go/pkg/model"
)

// Evaluator answers query membership and ordering questions. Both operations
// are pure; compiled filter programs are cached per query identity.
type Evaluator struct {
	programs map[string]cel.Program
}

func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]cel.Program)}
}

// Matches reports whether doc belongs to the query's result set. Evaluation
// failures (missing fields, type mismatches the filter cannot absorb) count
// as non-membership, never as engine errors.
func (e *Evaluator) Matches(q model.Query, doc *model.Document) bool {
	if doc == nil {
		return false
	}
	if doc.Collection != q.Collection {
		return false
	}
	if doc.Deleted && !q.ShowDeleted {
		return false
	}
	if len(q.Filters) == 0 {
		return true
	}

	prg, err := e.program(q)
	if err != nil {
		log.Printf("[Predicate] Failed to compile filters for %s: %v", q.Collection, err)
		return false
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"doc": doc.Data,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Compare orders two documents per the query's OrderBy clauses, falling back
// to the full path so the order is total and deterministic. Returns a
// negative value when a sorts before b.
func (e *Evaluator) Compare(q model.Query, a, b *model.Document) int {
	for _, o := range q.OrderBy {
		cmp := compareValues(fieldValue(a, o.Field), fieldValue(b, o.Field))
		if cmp == 0 {
			continue
		}
		if o.Direction == "desc" {
			return -cmp
		}
		return cmp
	}
	return strings.Compare(a.Fullpath, b.Fullpath)
}

func (e *Evaluator) program(q model.Query) (cel.Program, error) {
	key := q.Key()
	if prg, ok := e.programs[key]; ok {
		return prg, nil
	}
	prg, err := compileFiltersToCEL(q.Filters)
	if err != nil {
		return nil, err
	}
	e.programs[key] = prg
	return prg, nil
}

// fieldValue resolves an order-by field against the document, letting the
// reserved metadata names through to the envelope.
func fieldValue(d *model.Document, field string) interface{} {
	switch field {
	case "id":
		return d.Id
	case "version":
		return d.Version
	case "updatedAt":
		return d.UpdatedAt
	case "createdAt":
		return d.CreatedAt
	}
	if d.Data == nil {
		return nil
	}
	return d.Data[field]
}

// compareValues imposes a total order across the JSON scalar types:
// nil < bool < number < string. Values of the same type compare naturally.
func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankNil:
		return 0
	case rankBool:
		av, bv := a.(bool), b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case rankNumber:
		af, bf := asFloat(a), asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case rankString:
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case string:
		return rankString
	default:
		if isNumeric(v) {
			return rankNumber
		}
		return rankOther
	}
}
