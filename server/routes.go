package main

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/meikuraledutech/gradegraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type createModelRequest struct {
	gradegraph.Model
	// Template and Sources build the initial graph when Graph has no nodes.
	Template gradegraph.Template   `json:"template"`
	Sources  []gradegraph.SourceRef `json:"sources"`
}

type evaluateRequest struct {
	Sources map[string]float64 `json:"sources"`
}

type batchRequest struct {
	Students   gradegraph.Cohort `json:"students"`
	GradesOnly bool              `json:"gradesOnly"`
}

type courseGradesRequest struct {
	FinalModelID string            `json:"finalModelId"`
	Students     gradegraph.Cohort `json:"students"`
}

type server struct {
	store   gradegraph.Store
	log     *zap.Logger
	metrics *metrics
	opts    []gradegraph.BatchOption
}

func newApp(store gradegraph.Store, logger *zap.Logger, reg *prometheus.Registry, opts ...gradegraph.BatchOption) *fiber.App {
	s := &server{
		store:   store,
		log:     logger,
		metrics: newMetrics(reg),
		opts:    append(opts, gradegraph.WithLogger(logger)),
	}

	app := fiber.New()
	app.Use(s.logRequests)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := store.CreateSchema(c.Context()); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := store.DropSchema(c.Context()); err != nil {
			return s.fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Models ────────────────────────────────────────────────────────
	app.Post("/models", s.createModel)
	app.Get("/models/:id", s.getModel)
	app.Put("/models/:id/graph", s.replaceGraph)
	app.Get("/courses/:id/models", func(c fiber.Ctx) error {
		models, err := store.ListModels(c.Context(), c.Params("id"))
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(models)
	})

	app.Delete("/models/:id", func(c fiber.Ctx) error {
		if err := store.DeleteModel(c.Context(), c.Params("id")); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// ── Nodes ─────────────────────────────────────────────────────────
	app.Post("/models/:id/nodes", func(c fiber.Ctx) error {
		var node gradegraph.Node
		if err := c.Bind().JSON(&node); err != nil {
			return badBody(c, err)
		}
		id, err := store.AddNode(c.Context(), c.Params("id"), &node)
		if err != nil {
			return s.fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})

	app.Put("/models/:id/nodes/:node", func(c fiber.Ctx) error {
		var node gradegraph.Node
		if err := c.Bind().JSON(&node); err != nil {
			return badBody(c, err)
		}
		node.ID = c.Params("node")
		if err := store.UpdateNode(c.Context(), c.Params("id"), &node); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/models/:id/nodes/:node", func(c fiber.Ctx) error {
		if err := store.DeleteNode(c.Context(), c.Params("id"), c.Params("node")); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// ── Edges ─────────────────────────────────────────────────────────
	app.Post("/models/:id/edges", func(c fiber.Ctx) error {
		var edge gradegraph.Edge
		if err := c.Bind().JSON(&edge); err != nil {
			return badBody(c, err)
		}
		id, err := store.AddEdge(c.Context(), c.Params("id"), &edge)
		if err != nil {
			return s.fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	})

	app.Post("/models/:id/edges/check", s.checkEdge)

	app.Delete("/models/:id/edges/:edge", func(c fiber.Ctx) error {
		if err := store.DeleteEdge(c.Context(), c.Params("id"), c.Params("edge")); err != nil {
			return s.fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// ── Evaluation ────────────────────────────────────────────────────
	app.Post("/models/:id/evaluate", s.evaluate)
	app.Post("/models/:id/batch", s.batch)
	app.Post("/courses/:id/grades", s.courseGrades)

	return app
}

func (s *server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("took", time.Since(start)))
	return err
}

// fail maps store and engine errors onto HTTP responses.
func (s *server) fail(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gradegraph.ErrCyclicGraph):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "cycle detected"})
	case errors.Is(err, gradegraph.ErrInvalidGraph),
		errors.Is(err, gradegraph.ErrInvalidEdge),
		errors.Is(err, gradegraph.ErrInvalidSettings):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, gradegraph.ErrModelNotFound),
		errors.Is(err, gradegraph.ErrNodeNotFound),
		errors.Is(err, gradegraph.ErrEdgeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func badBody(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body: " + err.Error()})
}

func (s *server) createModel(c fiber.Ctx) error {
	var req createModelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badBody(c, err)
	}
	m := req.Model
	if len(m.Graph.Nodes) == 0 {
		g, err := gradegraph.NewGraph(req.Template, m.Name, req.Sources)
		if err != nil {
			return s.fail(c, err)
		}
		m.Graph = *g
	}
	created, err := s.store.CreateModel(c.Context(), &m)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// model loads the :id model, writing a 404 when it does not exist.
func (s *server) model(c fiber.Ctx) (*gradegraph.Model, error) {
	m, err := s.store.GetModel(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, gradegraph.ErrModelNotFound
	}
	return m, nil
}

func (s *server) getModel(c fiber.Ctx) error {
	m, err := s.model(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(m)
}

func (s *server) replaceGraph(c fiber.Ctx) error {
	var g gradegraph.Graph
	if err := c.Bind().JSON(&g); err != nil {
		return badBody(c, err)
	}
	if err := s.store.ReplaceGraph(c.Context(), c.Params("id"), &g); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *server) checkEdge(c fiber.Ctx) error {
	var edge gradegraph.Edge
	if err := c.Bind().JSON(&edge); err != nil {
		return badBody(c, err)
	}
	m, err := s.model(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := m.Graph.CheckConnection(edge); err != nil {
		return c.JSON(fiber.Map{"valid": false, "reason": err.Error()})
	}
	return c.JSON(fiber.Map{"valid": true})
}

func (s *server) evaluate(c fiber.Ctx) error {
	var req evaluateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badBody(c, err)
	}
	m, err := s.model(c)
	if err != nil {
		return s.fail(c, err)
	}

	start := time.Now()
	res, err := gradegraph.Evaluate(&m.Graph, req.Sources)
	s.observe("single", start, err)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func (s *server) batch(c fiber.Ctx) error {
	var req batchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badBody(c, err)
	}
	m, err := s.model(c)
	if err != nil {
		return s.fail(c, err)
	}

	start := time.Now()
	p, err := gradegraph.Compile(&m.Graph)
	if err != nil {
		s.observe("batch", start, err)
		return s.fail(c, err)
	}
	var out any
	if req.GradesOnly {
		out, err = p.GradeBatch(c.Context(), req.Students, s.opts...)
	} else {
		out, err = p.EvaluateBatch(c.Context(), req.Students, s.opts...)
	}
	s.observe("batch", start, err)
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.students.Add(float64(len(req.Students)))
	return c.JSON(out)
}

func (s *server) courseGrades(c fiber.Ctx) error {
	var req courseGradesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badBody(c, err)
	}
	models, err := s.store.ListModels(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	var final *gradegraph.Model
	for i := range models {
		if models[i].ID == req.FinalModelID {
			final = &models[i]
		}
	}
	if final == nil {
		return s.fail(c, gradegraph.ErrModelNotFound)
	}

	start := time.Now()
	grader, err := gradegraph.NewCourseGrader(final, models, s.opts...)
	if err != nil {
		s.observe("course", start, err)
		return s.fail(c, err)
	}
	grades, err := grader.Grade(c.Context(), req.Students)
	s.observe("course", start, err)
	if err != nil {
		return s.fail(c, err)
	}
	s.metrics.students.Add(float64(len(req.Students)))
	return c.JSON(grades)
}

func (s *server) observe(mode string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.evaluations.WithLabelValues(mode, outcome).Inc()
	s.metrics.duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
