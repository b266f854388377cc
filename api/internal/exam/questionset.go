package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// QuestionSet is the ordered question list of a test. It decodes from any of
//  1. an object keyed by question id: {"q1": {...}, "q2": {...}}
//  2. the envelope {"questions": [...]}
//  3. a bare array [...]
type QuestionSet []QuestionSpec

func (s *QuestionSet) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] == '[' {
		var list []QuestionSpec
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*s = normalizeList(list)
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if raw, ok := obj["questions"]; ok && len(obj) == 1 {
		var list []QuestionSpec
		if err := json.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("questions: %w", err)
		}
		*s = normalizeList(list)
		return nil
	}

	out := make([]QuestionSpec, 0, len(obj))
	for id, raw := range obj {
		var q QuestionSpec
		if err := json.Unmarshal(raw, &q); err != nil {
			return fmt.Errorf("question %s: %w", id, err)
		}
		q.ID = id
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return questionLess(out[i], out[j]) })
	assignNumbers(out)
	for i := range out {
		fillMarks(&out[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	*s = out
	return nil
}

// Check rejects sets whose ids or numbers collide; either would let two
// questions claim the same answer segment.
func (s QuestionSet) Check() error {
	ids := make(map[string]bool, len(s))
	numbers := make(map[int]string, len(s))
	for _, q := range s {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("%w: question without question_id", ErrInvalidRequest)
		}
		if ids[q.ID] {
			return fmt.Errorf("%w: duplicate question_id %q", ErrInvalidRequest, q.ID)
		}
		ids[q.ID] = true
		if q.Number <= 0 {
			continue
		}
		if other, ok := numbers[q.Number]; ok {
			return fmt.Errorf("%w: questions %q and %q share question_number %d", ErrInvalidRequest, other, q.ID, q.Number)
		}
		numbers[q.Number] = q.ID
	}
	return nil
}

// ByID indexes the set; the first occurrence of an id wins.
func (s QuestionSet) ByID() map[string]QuestionSpec {
	m := make(map[string]QuestionSpec, len(s))
	for _, q := range s {
		if _, ok := m[q.ID]; !ok {
			m[q.ID] = q
		}
	}
	return m
}

func normalizeList(list []QuestionSpec) QuestionSet {
	assignNumbers(list)
	for i := range list {
		if strings.TrimSpace(list[i].ID) == "" {
			list[i].ID = "q" + strconv.Itoa(list[i].Number)
		}
		fillMarks(&list[i])
	}
	return list
}

// assignNumbers gives unnumbered questions the smallest numbers nobody uses.
func assignNumbers(qs []QuestionSpec) {
	used := make(map[int]bool, len(qs))
	for _, q := range qs {
		if q.Number > 0 {
			used[q.Number] = true
		}
	}
	next := 1
	for i := range qs {
		if qs[i].Number > 0 {
			continue
		}
		for used[next] {
			next++
		}
		qs[i].Number = next
		used[next] = true
	}
}

func fillMarks(q *QuestionSpec) {
	if q.MaxMarks <= 0 {
		q.MaxMarks = q.DefaultMarks()
	}
}

func questionLess(a, b QuestionSpec) bool {
	an, bn := a.Number, b.Number
	if an > 0 && bn > 0 && an != bn {
		return an < bn
	}
	if (an > 0) != (bn > 0) {
		return an > 0
	}
	ai, aok := idSuffix(a.ID)
	bi, bok := idSuffix(b.ID)
	if aok && bok && ai != bi {
		return ai < bi
	}
	return a.ID < b.ID
}

// idSuffix extracts N from ids shaped like "q12".
func idSuffix(id string) (int, bool) {
	s := strings.TrimLeft(strings.ToLower(id), "q")
	n, err := strconv.Atoi(s)
	return n, err == nil
}
