package distribute

import (
	"fmt"
	"math"
	"strings"

	"evater/api/internal/exam"
)

// Range is the inclusive question-count range of a test length.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Config holds the length ranges and per-difficulty taxonomy weights.
type Config struct {
	Lengths map[exam.Length]Range                             `yaml:"lengths"`
	Weights map[exam.Difficulty]map[exam.QuestionType]float64 `yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{
		Lengths: map[exam.Length]Range{
			exam.Short: {Min: 5, Max: 8},
			exam.Long:  {Min: 10, Max: 15},
		},
		// Easy leans on remember/understand (mcq, true/false), Hard on
		// analyse/evaluate/create (short and long answers).
		Weights: map[exam.Difficulty]map[exam.QuestionType]float64{
			exam.Easy: {
				exam.MCQ: 0.40, exam.TrueFalse: 0.30, exam.ShortAnswer: 0.20, exam.LongAnswer: 0.10,
			},
			exam.Medium: {
				exam.MCQ: 0.30, exam.TrueFalse: 0.20, exam.ShortAnswer: 0.30, exam.LongAnswer: 0.20,
			},
			exam.Hard: {
				exam.MCQ: 0.20, exam.TrueFalse: 0.10, exam.ShortAnswer: 0.35, exam.LongAnswer: 0.35,
			},
		},
	}
}

// Merge overlays the non-empty parts of o onto c.
func (c Config) Merge(o Config) Config {
	out := Config{
		Lengths: make(map[exam.Length]Range, len(c.Lengths)),
		Weights: make(map[exam.Difficulty]map[exam.QuestionType]float64, len(c.Weights)),
	}
	for k, v := range c.Lengths {
		out.Lengths[k] = v
	}
	for k, v := range c.Weights {
		out.Weights[k] = v
	}
	for k, v := range o.Lengths {
		out.Lengths[k] = v
	}
	for k, v := range o.Weights {
		if len(v) > 0 {
			out.Weights[k] = v
		}
	}
	return out
}

func (c Config) Validate() error {
	for l, r := range c.Lengths {
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("length %s: bad range %d..%d", l, r.Min, r.Max)
		}
	}
	for d, w := range c.Weights {
		sum := 0.0
		for t, v := range w {
			if _, err := exam.ParseQuestionType(string(t)); err != nil {
				return fmt.Errorf("difficulty %s: %w", d, err)
			}
			if v < 0 {
				return fmt.Errorf("difficulty %s: negative weight for %s", d, t)
			}
			sum += v
		}
		if sum <= 0 {
			return fmt.Errorf("difficulty %s: weights sum to zero", d)
		}
	}
	return nil
}

type Request struct {
	Length       exam.Length
	Difficulty   exam.Difficulty
	Instructions []string
}

type Result struct {
	Plan exam.DistributionPlan `json:"plan"`
	// Guidance holds instructions that are not type filters; they are passed
	// to the generator as free text.
	Guidance []string `json:"guidance,omitempty"`
}

func (r Result) Total() int { return r.Plan.Total() }

type Distributor struct {
	cfg Config
}

func New(cfg Config) *Distributor {
	return &Distributor{cfg: cfg}
}

// Count returns the number of questions for a length and difficulty:
// the range minimum for Easy, the midpoint for Medium and the maximum for Hard.
func (d *Distributor) Count(l exam.Length, diff exam.Difficulty) (int, error) {
	r, ok := d.cfg.Lengths[l]
	if !ok {
		return 0, fmt.Errorf("%w: unknown length %q", exam.ErrInvalidDistributionRequest, l)
	}
	switch diff {
	case exam.Easy:
		return r.Min, nil
	case exam.Medium:
		return (r.Min + r.Max) / 2, nil
	case exam.Hard:
		return r.Max, nil
	}
	return 0, fmt.Errorf("%w: unknown difficulty %q", exam.ErrInvalidDistributionRequest, diff)
}

func (d *Distributor) Plan(req Request) (Result, error) {
	n, err := d.Count(req.Length, req.Difficulty)
	if err != nil {
		return Result{}, err
	}
	base, ok := d.cfg.Weights[req.Difficulty]
	if !ok {
		return Result{}, fmt.Errorf("%w: no weights for difficulty %q", exam.ErrInvalidDistributionRequest, req.Difficulty)
	}

	filters := ParseInstructions(req.Instructions)

	weights := make(map[exam.QuestionType]float64, len(exam.QuestionTypes))
	sum := 0.0
	for _, t := range exam.QuestionTypes {
		if !filters.Allows(t) {
			continue
		}
		weights[t] = base[t]
		sum += base[t]
	}
	if sum <= 0 {
		// allowed types all carry zero weight; spread evenly over them
		for _, t := range exam.QuestionTypes {
			if filters.Allows(t) {
				weights[t] = 1
				sum++
			}
		}
	}
	if sum <= 0 {
		return Result{}, fmt.Errorf("%w: instructions exclude every question type", exam.ErrInvalidDistributionRequest)
	}

	plan := make(exam.DistributionPlan, len(exam.QuestionTypes))
	assigned := 0
	var top exam.QuestionType
	for _, t := range exam.QuestionTypes {
		plan[t] = 0
		w, ok := weights[t]
		if !ok {
			continue
		}
		c := int(math.Floor(float64(n)*w/sum + 1e-9))
		plan[t] = c
		assigned += c
		if top == "" || w > weights[top] {
			top = t
		}
	}
	plan[top] += n - assigned

	return Result{Plan: plan, Guidance: filters.Guidance}, nil
}

// Filters is the parsed form of the free-text instructions.
type Filters struct {
	Only     map[exam.QuestionType]bool
	Excluded map[exam.QuestionType]bool
	Guidance []string
}

func (f Filters) Allows(t exam.QuestionType) bool {
	if f.Excluded[t] {
		return false
	}
	if f.Only != nil && !f.Only[t] {
		return false
	}
	return true
}

// ParseInstructions turns "mcq only", "no essays", "without true/false"
// style instructions into type filters. Several "only" instructions intersect.
func ParseInstructions(instructions []string) Filters {
	f := Filters{Excluded: map[exam.QuestionType]bool{}}
	for _, raw := range instructions {
		for _, clause := range reClause.Split(raw, -1) {
			f.add(strings.TrimSpace(clause))
		}
	}
	return f
}

func (f *Filters) add(s string) {
	if s == "" {
		return
	}
	low := strings.ToLower(s)
	mentioned := mentionedTypes(low)
	switch {
	case len(mentioned) == 0:
		f.Guidance = append(f.Guidance, s)
	case reNegation.MatchString(low):
		for t := range mentioned {
			f.Excluded[t] = true
		}
	case reOnly.MatchString(low):
		if f.Only == nil {
			f.Only = mentioned
			return
		}
		for t := range f.Only {
			if !mentioned[t] {
				delete(f.Only, t)
			}
		}
	default:
		f.Guidance = append(f.Guidance, s)
	}
}

func mentionedTypes(low string) map[exam.QuestionType]bool {
	out := map[exam.QuestionType]bool{}
	for _, m := range typeMentions {
		if m.re.MatchString(low) {
			for _, t := range m.types {
				out[t] = true
			}
		}
	}
	return out
}
