// Package httpapi wires the registry's HTTP surface: request decode,
// dependency dispatch, and error-to-status mapping. Credential
// verification is out of scope — the caller's identity is read directly
// off X-User-Id/X-User-Role headers, the way an upstream auth proxy would
// set them before forwarding.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/gcregistry/registry/internal/actions"
	"github.com/gcregistry/registry/internal/domain/certificate"
	"github.com/gcregistry/registry/internal/domain/identity"
	"github.com/gcregistry/registry/internal/domain/storagerecord"
	"github.com/gcregistry/registry/internal/importer"
	"github.com/gcregistry/registry/internal/query"
	"github.com/gcregistry/registry/internal/storageallocator"
	"github.com/gcregistry/registry/internal/whitelistgate"
)

// Deps bundles the engines and id/time sources the handlers dispatch to.
// Nothing here talks to a store directly; every engine already closes over
// whatever lookups it needs.
type Deps struct {
	Query       *query.Engine
	Actions     *actions.Processor
	Allocator   *storageallocator.Allocator
	// Gate confirms the requesting actor holds standing on the account a
	// query names, ahead of running it; actions.Processor makes the same
	// check internally for every lifecycle action, but the query path has
	// no Processor in front of it to do so.
	Gate        *whitelistgate.Gate
	NewImporter func(accountID string) *importer.Importer
	// CommitImport persists an accepted import summary's metadata and
	// bundles through the write path.
	CommitImport func(ctx context.Context, summary importer.Summary) error

	// AllocateAndCommit runs one storage allocation row and persists the
	// resulting AllocatedStorageRecord (and, when minted, SD-GC) through
	// the write path.
	AllocateAndCommit func(ctx context.Context, row storageallocator.Row, p storageallocator.MintParams) (storageallocator.Result, error)

	// SubmitStorageRecord assigns an id and persists a caller-reported
	// SCR/SDR flow.
	SubmitStorageRecord func(ctx context.Context, r storagerecord.StorageRecord) (storagerecord.StorageRecord, error)

	// CommitAction persists an actions.Result's bundle mutations through
	// the write path. The result's Action record is not written.
	CommitAction func(ctx context.Context, result actions.Result) error

	// ResolveBundles loads the bundles a request names, by id, for use as
	// an action request's Targets. A missing id aborts the whole lookup
	// with a NotFound error.
	ResolveBundles func(ctx context.Context, ids []string) ([]certificate.GranularCertificateBundle, error)

	NewBundleID     func() string
	NewActionID     func() string
	NewAllocationID func() string
	Now             func() time.Time

	Logger *logrus.Logger
}

// NewRouter builds the chi router serving the registry's HTTP surface.
func NewRouter(deps Deps) *chi.Mux {
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", h.health)

	r.Route("/certificate", func(r chi.Router) {
		r.Get("/query", h.queryBundles)
		r.Post("/import", h.importBundles)
		r.Post("/transfer", h.action(certificateActionTransfer))
		r.Post("/cancel", h.action(certificateActionCancel))
		r.Post("/claim", h.action(certificateActionClaim))
		r.Post("/withdraw", h.action(certificateActionWithdraw))
		r.Post("/lock", h.action(certificateActionLock))
		r.Post("/reserve", h.action(certificateActionReserve))
	})

	r.Route("/storage", func(r chi.Router) {
		r.Post("/storage_records", h.submitStorageRecord)
		r.Post("/allocated_storage_records", h.allocateStorageRecord)
		r.Post("/issue_sdgcs", h.issueSDGC)
	})

	return r
}

// requestLogger emits one structured logrus entry per request, carrying
// method/path/status/duration.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("http_request")
		})
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorFromRequest reads the resolved caller identity an upstream auth
// layer is expected to have placed on the request headers.
func actorFromRequest(r *http.Request) identity.Actor {
	return identity.Actor{
		UserID: r.Header.Get("X-User-Id"),
		Role:   identity.ParseRole(r.Header.Get("X-User-Role")),
	}
}
