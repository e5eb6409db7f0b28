package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/seantiz/parcheck/internal/engine"
	"github.com/seantiz/parcheck/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

// writeSlack is added to a run's timeout when extending the write deadline.
const writeSlack = 10 * time.Second

// decodeParams reads optional run overrides from the request body. An empty
// body means no overrides.
func decodeParams(w http.ResponseWriter, r *http.Request) (engine.Params, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return engine.Params{}, errInvalidBody
	}
	return engine.ParamsFromMap(body)
}

var errInvalidBody = errors.New("invalid JSON body")

// handleCheck runs the batch synchronously and answers with its record.
// Invalid overrides and timeouts are reported inside the record.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	p, err := decodeParams(w, r)
	if errors.Is(err, errInvalidBody) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusOK, configRecord(err))
		return
	}

	if opts, err := s.checker.Options(p); err == nil {
		rc := http.NewResponseController(w)
		deadline := time.Now().Add(opts.TimeoutDuration() + writeSlack)
		if err := rc.SetWriteDeadline(deadline); err != nil {
			s.logger.Debug("extend write deadline", "error", err)
		}
	}

	runID := model.NewID()
	w.Header().Set("X-Run-Id", runID)

	res, err := s.checker.Run(r.Context(), runID, p)
	var timeoutErr *engine.TimeoutError
	if errors.As(err, &timeoutErr) {
		s.logger.Warn("check run timed out", "run_id", runID, "error", err)
	}
	s.writeJSON(w, http.StatusOK, res)
}

func configRecord(err error) model.Result {
	var cfgErr *engine.ConfigError
	if errors.As(err, &cfgErr) {
		return model.NewResult(model.StatusCritical, cfgErr.Message)
	}
	return model.NewResult(model.StatusCritical, err.Error())
}
