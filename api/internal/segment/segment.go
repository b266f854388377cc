// Package segment splits OCR text of answer sheets into per-question answers.
package segment

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"evater/api/internal/exam"
)

// markerRe matches an answer label at the start of a line: "1.", "1)", "(1)",
// "Q1", "Q.1", "Q. No. 1", "Question 1:", "Ans 1 -", "Answer 1", optionally
// wrapped in markdown. The label must be followed by whitespace or the end of
// the line so that "1.5 litres" is not a marker.
var markerRe = regexp.MustCompile(`(?im)^[ \t]*(?:[#>*_\-]+[ \t]*)*` +
	`(?:` +
	`(?:question|ques|answer|ans|q)[ \t]*\.?[ \t]*(?:no\.?|number)?[ \t]*\(?(\d{1,3})\)?` +
	`|\((\d{1,3})\)` +
	`|(\d{1,3})[.)]` +
	`)` +
	`(?:\*\*|__)?[ \t]*[:.)\-–]?(?:\*\*|__)?(?:[ \t]+|$)`)

type Result struct {
	// Answers holds exactly one record per question, in question order.
	Answers   []exam.AnswerRecord `json:"answers"`
	Anomalies []exam.Anomaly      `json:"anomalies"`
}

func (r Result) ByID() map[string]exam.AnswerRecord {
	m := make(map[string]exam.AnswerRecord, len(r.Answers))
	for _, a := range r.Answers {
		m[a.QuestionID] = a
	}
	return m
}

type marker struct {
	id           string
	start        int // offset of the label
	contentStart int // offset right after the label
}

// Segment assigns the text following each recognised label to its question.
// A segment runs until the next accepted label, across page boundaries.
// Labels for unknown question numbers stay part of the surrounding text, and a
// repeated label for an already answered question is treated the same way.
func Segment(pages []string, questions []exam.QuestionSpec) Result {
	doc := newDocument(pages)
	res := Result{Anomalies: []exam.Anomaly{}}

	for i, p := range pages {
		if strings.TrimSpace(p) == "" {
			res.Anomalies = append(res.Anomalies, exam.Anomaly{Kind: exam.AnomalyEmptyPage, PageIndex: i})
		}
	}

	lookup := numberLookup(questions)
	var markers []marker
	claimed := map[string]bool{}
	for _, m := range markerRe.FindAllStringSubmatchIndex(doc.text, -1) {
		n, ok := markerNumber(doc.text, m)
		if !ok {
			continue
		}
		id, known := lookup[n]
		if !known {
			continue
		}
		if claimed[id] {
			res.Anomalies = append(res.Anomalies, exam.Anomaly{
				Kind:       exam.AnomalyDuplicateMarker,
				QuestionID: id,
				PageIndex:  doc.page(m[0]),
				Detail:     strings.TrimSpace(doc.text[m[0]:m[1]]),
			})
			continue
		}
		claimed[id] = true
		markers = append(markers, marker{id: id, start: m[0], contentStart: m[1]})
	}

	preambleEnd := len(doc.text)
	if len(markers) > 0 {
		preambleEnd = markers[0].start
	}
	if pre := strings.TrimSpace(doc.text[:preambleEnd]); pre != "" {
		off := strings.Index(doc.text, pre)
		res.Anomalies = append(res.Anomalies, exam.Anomaly{
			Kind:      exam.AnomalyUnmatchedText,
			PageIndex: doc.page(off),
			Detail:    truncate(pre, 200),
		})
	}

	found := make(map[string]exam.AnswerRecord, len(markers))
	for k, mk := range markers {
		end := len(doc.text)
		if k+1 < len(markers) {
			end = markers[k+1].start
		}
		text := strings.TrimSpace(doc.text[mk.contentStart:end])
		if text == "" {
			rec := exam.MissingAnswer(mk.id, exam.ReasonEmptySegment)
			rec.PageIndex = doc.page(mk.start)
			found[mk.id] = rec
			continue
		}
		found[mk.id] = exam.AnswerRecord{
			QuestionID: mk.id,
			Text:       text,
			PageIndex:  doc.page(mk.start),
			Status:     exam.AnswerFound,
		}
	}

	res.Answers = make([]exam.AnswerRecord, 0, len(questions))
	for _, q := range questions {
		if rec, ok := found[q.ID]; ok {
			res.Answers = append(res.Answers, rec)
			continue
		}
		res.Answers = append(res.Answers, exam.MissingAnswer(q.ID, exam.ReasonNoMarker))
	}
	return res
}

// numberLookup maps a printed label number to a question id. Question numbers
// win over numeric id suffixes ("q3").
func numberLookup(questions []exam.QuestionSpec) map[int]string {
	m := make(map[int]string, len(questions))
	for _, q := range questions {
		if q.Number > 0 {
			if _, ok := m[q.Number]; !ok {
				m[q.Number] = q.ID
			}
		}
	}
	for _, q := range questions {
		if n, ok := idNumber(q.ID); ok {
			if _, taken := m[n]; !taken {
				m[n] = q.ID
			}
		}
	}
	return m
}

func idNumber(id string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(id))
	if !strings.HasPrefix(s, "q") {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	return n, err == nil && n > 0
}

func markerNumber(text string, m []int) (int, bool) {
	for g := 1; g <= 3; g++ {
		if s, e := m[2*g], m[2*g+1]; s >= 0 {
			n, err := strconv.Atoi(text[s:e])
			return n, err == nil
		}
	}
	return 0, false
}

type document struct {
	text   string
	starts []int // offset of each page in text
}

func newDocument(pages []string) document {
	var b strings.Builder
	starts := make([]int, len(pages))
	for i, p := range pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		starts[i] = b.Len()
		b.WriteString(strings.ReplaceAll(p, "\r\n", "\n"))
	}
	return document{text: b.String(), starts: starts}
}

// page returns the index of the page containing offset.
func (d document) page(offset int) int {
	if len(d.starts) == 0 {
		return -1
	}
	i := sort.Search(len(d.starts), func(i int) bool { return d.starts[i] > offset })
	return i - 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
