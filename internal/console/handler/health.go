package handler

import "net/http"

// Health - проверка живости процесса, без похода в зависимости.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
