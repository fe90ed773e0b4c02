package control

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-timewarp/pkg/timewarp"
)

// ParamsResponse is returned by GET /api/params.
type ParamsResponse struct {
	Params     timewarp.Params    `json:"params"`
	Normalized map[string]float64 `json:"normalized"`
	Limits     timewarp.Limits    `json:"limits"`
}

// SetParamRequest is the body of POST /api/params/:name. Value is the
// normalized [0,1] control value; Raw, when set, is written unscaled.
type SetParamRequest struct {
	Value *float64 `json:"value"`
	Raw   *float64 `json:"raw"`
}

// SetParamResponse reports the applied change.
type SetParamResponse struct {
	Change     timewarp.Change `json:"change"`
	Normalized float64         `json:"normalized"`
}

// ChangesResponse reports the writes of a preset, randomize or realtime call.
type ChangesResponse struct {
	Changes []timewarp.Change `json:"changes"`
	Params  timewarp.Params   `json:"params"`
}

func (s *Server) handleGetParams(c *fiber.Ctx) error {
	return c.JSON(ParamsResponse{
		Params:     s.engine.Params(),
		Normalized: s.engine.NormalizedAll(),
		Limits:     s.engine.Limits(),
	})
}

func (s *Server) handleSetParam(c *fiber.Ctx) error {
	name := c.Params("name")
	if _, ok := ParamForAddress("/" + name); !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown parameter: "+name)
	}

	var req SetParamRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var (
		ch  timewarp.Change
		err error
	)
	switch {
	case req.Raw != nil:
		ch, err = s.engine.Set(name, *req.Raw)
	case req.Value != nil:
		ch, err = s.engine.SetNormalized(name, *req.Value)
	default:
		return fiber.NewError(fiber.StatusBadRequest, "value or raw is required")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	v, _ := s.engine.Normalized(name)
	return c.JSON(SetParamResponse{Change: ch, Normalized: v})
}

func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets": timewarp.Presets(),
		"names":   timewarp.PresetNames(),
	})
}

func (s *Server) handleApplyPreset(c *fiber.Ctx) error {
	changes, err := s.engine.ApplyPreset(c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(ChangesResponse{Changes: changes, Params: s.engine.Params()})
}

func (s *Server) handleRandomize(c *fiber.Ctx) error {
	changes := s.engine.Randomize()
	return c.JSON(ChangesResponse{Changes: changes, Params: s.engine.Params()})
}

func (s *Server) handleRealtime(c *fiber.Ctx) error {
	s.engine.BackToRealtime()
	return c.JSON(ChangesResponse{Changes: []timewarp.Change{}, Params: s.engine.Params()})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.mu.RLock()
	extra := s.extra
	s.mu.RUnlock()

	resp := fiber.Map{
		"engine":  s.engine.Status(),
		"control": s.control.Stats(),
		"preview": s.preview.Stats(),
	}
	if extra != nil {
		resp["runtime"] = extra()
	}
	return c.JSON(resp)
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.cameras
	s.mu.RUnlock()

	if m == nil {
		return fiber.NewError(fiber.StatusNotFound, "no camera attached")
	}
	return c.JSON(m.GetConfigJSON())
}

func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	s.mu.RLock()
	m := s.cameras
	s.mu.RUnlock()

	if m == nil {
		return fiber.NewError(fiber.StatusNotFound, "no camera attached")
	}

	var updates map[string]any
	if err := c.BodyParser(&updates); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := m.UpdateConfig(updates); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	cfg := m.GetConfigJSON()
	s.logger.Info("camera reconfigured", "config", cfg)
	return c.JSON(cfg)
}
