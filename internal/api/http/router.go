package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MLeprich/mitgliederverwaltung/internal/config"
	"github.com/MLeprich/mitgliederverwaltung/internal/security"
	"github.com/MLeprich/mitgliederverwaltung/internal/service"
)

// RouterDeps bundles everything the API surface needs.
type RouterDeps struct {
	Config   *config.Config
	Tokens   security.TokenManager
	Members  service.MemberService
	Importer service.ImportService
	Exporter service.ExportService
}

// NewRouter builds the full API router. Everything under /api/v1 except the
// login endpoint requires a valid access token.
func NewRouter(deps RouterDeps) *mux.Router {
	authH := NewAuthHandler(deps.Config.Admin, deps.Tokens)
	memberH := NewMemberHandler(deps.Members, deps.Config.Policy.ExpiryWarnDays)
	photoH := NewPhotoHandler(deps.Members, memberH, deps.Config.Storage.MaxUploadSizeMB)
	transferH := NewTransferHandler(deps.Importer, deps.Exporter, deps.Config.Storage.MaxUploadSizeMB)

	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", authH.Login).Methods("POST")

	protected := api.NewRoute().Subrouter()
	protected.Use(authMiddleware(deps.Tokens))

	protected.HandleFunc("/dashboard", memberH.Dashboard).Methods("GET")

	protected.HandleFunc("/members", memberH.List).Methods("GET")
	protected.HandleFunc("/members", memberH.Create).Methods("POST")
	protected.HandleFunc("/members/{id:[0-9]+}", memberH.Get).Methods("GET")
	protected.HandleFunc("/members/{id:[0-9]+}", memberH.Update).Methods("PUT")
	protected.HandleFunc("/members/{id:[0-9]+}", memberH.Delete).Methods("DELETE")
	protected.HandleFunc("/members/{id:[0-9]+}/deactivate", memberH.Deactivate).Methods("POST")
	protected.HandleFunc("/members/{id:[0-9]+}/photo", photoH.Upload).Methods("POST")
	protected.HandleFunc("/members/{id:[0-9]+}/photo", photoH.Download).Methods("GET")

	protected.HandleFunc("/import", transferH.Import).Methods("POST")
	protected.HandleFunc("/import/template", transferH.Template).Methods("GET")
	protected.HandleFunc("/export", transferH.Export).Methods("GET")

	return r
}
