package course

import (
	"errors"
	"iter"
	"net/http"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"CourseStore/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20

	defaultPageSize = 20
	maxPageSize     = 100
)

// Repository is the store boundary the HTTP layer calls into. *Store
// implements it.
type Repository interface {
	Create(in Input) (Record, error)
	Get(id int64) (Record, error)
	List() iter.Seq[Record]
	Update(id int64, in Input) (Record, error)
	Replace(id int64, in Input) (Record, error)
	Delete(id int64) error
	SearchMode(query string, mode MatchMode) []Record
}

var _ Repository = (*Store)(nil)

type Server struct {
	Store Repository
	Log   *zap.Logger

	ready atomic.Bool
}

// SetReady flips /readyz once the initial data load has finished.
func (s *Server) SetReady(v bool) { s.ready.Store(v) }

type pageMeta struct {
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	Total     int `json:"total"`
	PageCount int `json:"page_count"`
}

type pageResp struct {
	Data []Record `json:"data"`
	Meta pageMeta `json:"meta"`
}

// Routes wires the course API. writeMW guards the mutating routes only.
func (s *Server) Routes(writeMW ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.readyz)

	r.Route("/courses", func(r chi.Router) {
		r.Get("/", s.list)
		r.Get("/search", s.search)
		r.Get("/{id}", s.get)

		r.Group(func(wr chi.Router) {
			wr.Use(s.requireReady)
			wr.Use(writeMW...)
			wr.Post("/", s.create)
			wr.Put("/{id}", s.replace)
			wr.Patch("/{id}", s.update)
			wr.Delete("/{id}", s.delete)
		})
	})

	return r
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// requireReady holds writes back until the initial load has finished, so
// loaded records get their ids first.
func (s *Server) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.Header().Set("Retry-After", "1")
			kit.WriteError(w, r, http.StatusServiceUnavailable, "loading", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	page, size, ok := parsePage(w, r)
	if !ok {
		return
	}
	kit.WriteJSON(w, http.StatusOK, paginate(slices.Collect(s.Store.List()), page, size))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, ok := ParseMatchMode(q.Get("mode"))
	if !ok {
		kit.WriteError(w, r, http.StatusBadRequest, "bad mode", map[string]any{"allowed": []string{"substring", "prefix"}})
		return
	}
	page, size, ok := parsePage(w, r)
	if !ok {
		return
	}

	kit.WriteJSON(w, http.StatusOK, paginate(s.Store.SearchMode(q.Get("q"), mode), page, size))
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	rec, err := s.Store.Get(id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	rec, err := s.Store.Create(in)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	w.Header().Set("Location", "/courses/"+strconv.FormatInt(rec.ID, 10))
	kit.WriteJSON(w, http.StatusCreated, rec)
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.Store.Replace)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.Store.Update)
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, apply func(int64, Input) (Record, error)) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	rec, err := apply(id, in)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.Store.Delete(id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var body map[string]any
	if err := kit.DecodeJSON(w, r, maxBodyBytes, &body); err != nil {
		if errors.Is(err, kit.ErrBodyTooLarge) {
			kit.WriteError(w, r, http.StatusRequestEntityTooLarge, "body too large", map[string]any{"max_bytes": maxBodyBytes})
			return Input{}, false
		}
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return Input{}, false
	}
	if body == nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": "expected an object"})
		return Input{}, false
	}

	in, err := ParseInput(body)
	if err != nil {
		s.writeStoreError(w, r, err)
		return Input{}, false
	}
	return in, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		nf *NotFoundError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &nf):
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": nf.ID})
	case errors.As(err, &ve):
		kit.WriteError(w, r, http.StatusBadRequest, "validation failed", map[string]any{
			"field":  ve.Field,
			"reason": ve.Reason,
		})
	default:
		if s.Log != nil {
			s.Log.Error("course store failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad id", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

// parsePage reads page and page_size. With neither set everything is
// returned on one page.
func parsePage(w http.ResponseWriter, r *http.Request) (page, size int, ok bool) {
	q := r.URL.Query()
	page, size = 1, 0

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			kit.WriteError(w, r, http.StatusBadRequest, "bad page", map[string]any{"page": v})
			return 0, 0, false
		}
		page = n
		size = defaultPageSize
	}
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			kit.WriteError(w, r, http.StatusBadRequest, "bad page_size", map[string]any{"page_size": v, "max": maxPageSize})
			return 0, 0, false
		}
		size = n
	}
	return page, size, true
}

func paginate(all []Record, page, size int) pageResp {
	if all == nil {
		all = []Record{}
	}
	total := len(all)
	if size == 0 {
		return pageResp{
			Data: all,
			Meta: pageMeta{Page: 1, PageSize: total, Total: total, PageCount: 1},
		}
	}

	pages := (total + size - 1) / size
	// Pages past the end are empty; checking first keeps (page-1)*size small.
	start := total
	if page <= pages {
		start = (page - 1) * size
	}
	end := min(start+size, total)
	return pageResp{
		Data: all[start:end],
		Meta: pageMeta{
			Page:      page,
			PageSize:  size,
			Total:     total,
			PageCount: pages,
		},
	}
}
