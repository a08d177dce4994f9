package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"citydir/internal/api"
	"citydir/internal/codec"
	"citydir/internal/directory"
	"citydir/internal/model"
	"citydir/internal/relay"
	"citydir/internal/upload"
)

const (
	maxJSONBody  = 1 << 20
	helloCommand = "hello"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var meta model.CityMetadata
	if err := decodeJSON(w, r, &meta); err != nil {
		writeJSONError(w, http.StatusBadRequest, api.CodeInvalid, err.Error())
		return
	}

	if err := s.dir.Register(meta); err != nil {
		s.log.Info("register rejected", "city", meta.Name, "id", meta.ID, "error", err)
		writeDirectoryError(w, err)
		return
	}

	s.log.Info("city registered", "city", meta.Name, "id", meta.ID, "map", meta.Map, "address", meta.Address)
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var t model.Telemetry
	if err := decodeTelemetry(w, r, &t); err != nil {
		writeJSONError(w, http.StatusBadRequest, api.CodeInvalid, err.Error())
		return
	}

	s.dir.UpdateTelemetry(id, t)
	s.log.Debug("telemetry updated", "id", id, "running", t.Running, "population", t.Population)
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "OK"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	t, err := s.dir.TelemetryByName(r.PathValue("name"))
	if err != nil {
		writeDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req api.CommandRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, api.CodeInvalid, err.Error())
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, api.CodeInvalid, "command name is required")
		return
	}
	s.relayCommand(w, r, r.PathValue("name"), req.Name)
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	s.relayCommand(w, r, r.PathValue("name"), helloCommand)
}

func (s *Server) relayCommand(w http.ResponseWriter, r *http.Request, name, command string) {
	address, ok := s.dir.ResolveAddress(name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, api.CodeUnknown, "city not found")
		return
	}

	start := s.now()
	result, err := s.relay.Send(r.Context(), address, command)
	elapsed := s.now().Sub(start)

	s.recordRelay(model.RelaySample{
		Timestamp: start.UTC(),
		City:      name,
		Address:   address,
		Outcome:   relay.Outcome(result, err),
		RTTMs:     float64(elapsed.Microseconds()) / 1000.0,
		Bytes:     len(result),
	})

	if err != nil {
		s.log.Warn("command relay failed", "city", name, "address", address, "command", command, "error", err)
		writeRelayError(w, err)
		return
	}
	s.log.Debug("command relayed", "city", name, "address", address, "command", command, "elapsed", elapsed)
	writeJSON(w, http.StatusOK, api.CommandResponse{Result: result})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		writeJSONError(w, http.StatusNotFound, api.CodeInvalid, "uploads are disabled")
		return
	}

	id := r.PathValue("id")
	rec, err := s.uploads.Save(id, r.Body)
	switch {
	case err == nil:
	case errors.Is(err, upload.ErrTooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, api.CodeTooLarge, err.Error())
		return
	case errors.Is(err, upload.ErrInvalidID):
		writeJSONError(w, http.StatusBadRequest, api.CodeInvalid, err.Error())
		return
	default:
		s.log.Error("save upload failed", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, api.CodeInternal, "failed to save image")
		return
	}

	s.log.Info("upload saved", "id", id, "path", rec.Path, "bytes", rec.Bytes)
	writeJSON(w, http.StatusOK, api.UploadResponse{Bytes: rec.Bytes, Digest: rec.Digest})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dir.List())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.dir.Stats()
	writeJSON(w, http.StatusOK, api.StatsResponse{
		Cities:       st.Cities,
		Reporting:    st.Reporting,
		Orphans:      st.Orphans,
		OrphanIDs:    st.OrphanIDs,
		Registration: string(s.dir.Mode()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "OK"})
}

func decodeTelemetry(w http.ResponseWriter, r *http.Request, t *model.Telemetry) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == codec.ContentType {
		return codec.Decode(http.MaxBytesReader(w, r.Body, maxJSONBody), t)
	}
	return decodeJSON(w, r, t)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func writeDirectoryError(w http.ResponseWriter, err error) {
	switch directory.KindOf(err) {
	case directory.KindConflict:
		writeJSONError(w, http.StatusConflict, api.CodeConflict, err.Error())
	case directory.KindUnknown:
		writeJSONError(w, http.StatusNotFound, api.CodeUnknown, err.Error())
	case directory.KindPending:
		writeJSONError(w, http.StatusBadRequest, api.CodePending, err.Error())
	case directory.KindInvalid:
		writeJSONError(w, http.StatusBadRequest, api.CodeInvalid, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
	}
}

func writeRelayError(w http.ResponseWriter, err error) {
	msg := err.Error()
	switch relay.KindOf(err) {
	case relay.KindTimeout:
		writeJSONError(w, http.StatusGatewayTimeout, api.CodeRelayTimeout, msg)
	case relay.KindConnect:
		writeJSONError(w, http.StatusBadGateway, api.CodeRelayConnect, msg)
	case relay.KindWrite:
		writeJSONError(w, http.StatusBadGateway, api.CodeRelayWrite, msg)
	case relay.KindRead:
		writeJSONError(w, http.StatusBadGateway, api.CodeRelayRead, msg)
	default:
		writeJSONError(w, http.StatusBadGateway, api.CodeInternal, strings.TrimSpace(msg))
	}
}
