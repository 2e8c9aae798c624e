package http

import (
	"net/http"
	"strconv"

	"tallyo/internal/auth"
	"tallyo/internal/core"
	"tallyo/internal/log"
	"tallyo/internal/services"
)

// handleImport ingests externally-sourced transactions authenticated by a
// bearer API token rather than a browser session. The success message is the
// number of rows actually inserted; replayed rows are skipped silently.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticator.UserFromAPIToken(r.Context(), auth.BearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, core.Result{OK: false, Message: "Unauthorized"})
		return
	}

	var rows []services.ImportRequest
	if err := decodeJSON(w, r, &rows); err != nil {
		writeResult(w, err, "")
		return
	}
	if len(rows) == 0 {
		writeResult(w, core.Validationf("body", "no rows to import"), "")
		return
	}

	inserted, err := s.importer.Import(r.Context(), userID, rows)
	if err != nil {
		writeResult(w, err, "")
		return
	}
	if inserted > 0 {
		s.invalidateReports(userID)
	}

	s.logger.InfoContext(r.Context(), "Bulk import completed",
		log.FieldUserID, userID,
		log.FieldRowCount, len(rows),
		log.FieldImported, inserted,
		log.FieldSkipped, int64(len(rows))-inserted)

	writeJSON(w, http.StatusOK, core.Result{OK: true, Message: strconv.FormatInt(inserted, 10)})
}
