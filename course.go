package gradegraph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// CourseGrade is one student's outcome for a course: the part-grades that
// could be computed and the final grade.
type CourseGrade struct {
	Parts map[string]Grade `json:"parts,omitempty"`
	Final Grade            `json:"final"`
}

type coursePart struct {
	id      string
	program *Program
}

// CourseGrader evaluates a course's final model, first computing the
// part-grade models it composes. The final model's Source node ids are the
// CoursePartIDs of the part models.
type CourseGrader struct {
	final *Program
	parts []coursePart
	opts  []BatchOption
	log   *zap.Logger
}

// NewCourseGrader compiles final and the part models its Sources reference.
// When final is itself a part model it is graded directly from task values
// and parts are ignored.
func NewCourseGrader(final *Model, parts []Model, opts ...BatchOption) (*CourseGrader, error) {
	prog, err := Compile(&final.Graph)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: compile model %s: %w", final.ID, err)
	}
	cg := &CourseGrader{final: prog, opts: opts, log: newBatchConfig(opts).logger}
	if final.CoursePartID != "" {
		return cg, nil
	}

	byPart := make(map[string]*Model, len(parts))
	for i := range parts {
		if parts[i].CoursePartID != "" {
			byPart[parts[i].CoursePartID] = &parts[i]
		}
	}
	for _, id := range prog.SourceIDs() {
		m, ok := byPart[id]
		if !ok {
			cg.log.Debug("final model source has no part model", zap.String("source", id))
			continue
		}
		pp, err := Compile(&m.Graph)
		if err != nil {
			return nil, fmt.Errorf("gradegraph: compile part model %s: %w", m.ID, err)
		}
		cg.parts = append(cg.parts, coursePart{id: id, program: pp})
	}
	return cg, nil
}

// Grade computes every student's course grade. A part is skipped for a
// student with no value for any of its sources; the final model then sees
// that part as missing.
func (cg *CourseGrader) Grade(ctx context.Context, cohort Cohort) (map[string]CourseGrade, error) {
	out := make(map[string]CourseGrade, len(cohort))
	finalCohort := cohort
	if len(cg.parts) > 0 {
		finalCohort = make(Cohort, len(cohort))
		for id := range cohort {
			finalCohort[id] = map[string]float64{}
		}
	}

	for _, part := range cg.parts {
		sub := make(Cohort)
		for student, values := range cohort {
			if hasAnySource(part.program, values) {
				sub[student] = values
			}
		}
		grades, err := part.program.GradeBatch(ctx, sub, cg.opts...)
		if err != nil {
			return nil, fmt.Errorf("gradegraph: grade part %s: %w", part.id, err)
		}
		for student, g := range grades {
			cgr := out[student]
			if cgr.Parts == nil {
				cgr.Parts = make(map[string]Grade)
			}
			cgr.Parts[part.id] = g
			out[student] = cgr
			finalCohort[student][part.id] = g.Value
		}
		cg.log.Debug("course part graded",
			zap.String("part", part.id),
			zap.Int("students", len(grades)),
			zap.Int("skipped", len(cohort)-len(grades)))
	}

	finals, err := cg.final.GradeBatch(ctx, finalCohort, cg.opts...)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: grade final model: %w", err)
	}
	for student, g := range finals {
		cgr := out[student]
		cgr.Final = g
		out[student] = cgr
	}
	return out, nil
}

func hasAnySource(p *Program, values map[string]float64) bool {
	for _, i := range p.sources {
		if _, ok := values[p.nodes[i].id]; ok {
			return true
		}
	}
	return false
}
