package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/bitop-dev/shopagent/pkg/ai/sse"
	"github.com/bitop-dev/shopagent/pkg/session"
)

const maxBodySize = 1 << 20

// runRequest is the body of /run and /run_sse. Both snake_case and
// camelCase field names are accepted.
type runRequest struct {
	AppName    string
	UserID     string
	SessionID  string
	Text       string
	StateDelta map[string]any
	Streaming  bool
}

func parseRunRequest(body []byte) (runRequest, error) {
	var req runRequest
	if !gjson.ValidBytes(body) {
		return req, errors.Wrap(errBadRequest, "body is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	field := func(names ...string) gjson.Result {
		for _, n := range names {
			if v := doc.Get(n); v.Exists() {
				return v
			}
		}
		return gjson.Result{}
	}

	req.AppName = field("app_name", "appName").String()
	req.UserID = field("user_id", "userId").String()
	req.SessionID = field("session_id", "sessionId").String()
	req.Streaming = field("streaming").Bool()
	if req.AppName == "" || req.UserID == "" || req.SessionID == "" {
		return req, errors.Wrap(errBadRequest, "app_name, user_id and session_id are required")
	}

	var texts []string
	for _, p := range field("new_message", "newMessage").Get("parts").Array() {
		if t := p.Get("text").String(); t != "" {
			texts = append(texts, t)
		}
	}
	req.Text = strings.Join(texts, "\n")
	if strings.TrimSpace(req.Text) == "" {
		return req, errors.Wrap(errBadRequest, "new_message has no text parts")
	}

	if sd := field("state_delta", "stateDelta"); sd.IsObject() {
		if err := json.Unmarshal([]byte(sd.Raw), &req.StateDelta); err != nil {
			return req, errors.Wrap(errBadRequest, "state_delta: "+err.Error())
		}
	}
	return req, nil
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.opts.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listAppsHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, []string{s.opts.AppName})
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	vars := mux.Vars(r)
	if err := s.checkApp(vars["app"]); err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}

	body, err := readBody(r)
	if err != nil {
		renderHTTPError(log, w, err, http.StatusBadRequest)
		return
	}
	var state map[string]any
	if len(strings.TrimSpace(string(body))) > 0 {
		if !gjson.ValidBytes(body) {
			renderHTTPError(log, w, errors.Wrap(errBadRequest, "body is not valid JSON"), http.StatusBadRequest)
			return
		}
		if st := gjson.GetBytes(body, "state"); st.IsObject() {
			if err := json.Unmarshal([]byte(st.Raw), &state); err != nil {
				renderHTTPError(log, w, errors.Wrap(errBadRequest, err.Error()), http.StatusBadRequest)
				return
			}
		}
	}

	sess, err := s.opts.Sessions.Create(r.Context(), vars["app"], vars["user"], vars["session"], state)
	if err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	log.WithField("session", sess.ID).Info("session created")
	renderJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	vars := mux.Vars(r)
	if err := s.checkApp(vars["app"]); err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	sess, err := s.opts.Sessions.Get(r.Context(), vars["app"], vars["user"], vars["session"])
	if err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	renderJSON(w, http.StatusOK, s.sessionView(sess))
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	vars := mux.Vars(r)
	if err := s.checkApp(vars["app"]); err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	list, err := s.opts.Sessions.List(r.Context(), vars["app"], vars["user"])
	if err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	out := make([]SessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, s.sessionView(sess))
	}
	renderJSON(w, http.StatusOK, out)
}

func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	vars := mux.Vars(r)
	if err := s.checkApp(vars["app"]); err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	if err := s.opts.Sessions.Delete(r.Context(), vars["app"], vars["user"], vars["session"]); err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runHandler answers with every event of the run as one JSON array.
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	body, err := readBody(r)
	if err != nil {
		renderHTTPError(log, w, err, http.StatusBadRequest)
		return
	}
	req, err := parseRunRequest(body)
	if err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}

	events := []Event{}
	err = s.run(r.Context(), req, log, func(ev Event) { events = append(events, ev) })
	if err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	renderJSON(w, http.StatusOK, events)
}

// runSSEHandler streams each event as it happens. Failures after the first
// event are reported in-band as {"error": "..."}.
func (s *Server) runSSEHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLog(r)
	body, err := readBody(r)
	if err != nil {
		renderHTTPError(log, w, err, http.StatusBadRequest)
		return
	}
	req, err := parseRunRequest(body)
	if err != nil {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}

	out := sse.NewWriter(w)
	err = s.run(r.Context(), req, log, func(ev Event) {
		if err := out.Send(ev); err != nil {
			log.WithError(err).Debug("client gone")
		}
	})
	if err == nil {
		return
	}
	if !out.Started() {
		renderHTTPError(log, w, err, statusOf(err))
		return
	}
	log.WithError(err).Error("run failed")
	_ = out.Send(map[string]string{"error": err.Error()})
}

func (s *Server) sessionView(sess *session.Session) SessionView {
	state := sess.State
	if state == nil {
		state = map[string]any{}
	}
	return SessionView{
		ID:             sess.ID,
		AppName:        sess.AppName,
		UserID:         sess.UserID,
		State:          state,
		Events:         eventsFromMessages(s.agentName(), sess.Messages),
		LastUpdateTime: float64(sess.LastUpdateTime.UnixMilli()) / 1000,
	}
}
